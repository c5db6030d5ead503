// Package context tracks the token cost of the files sent to the model and
// assembles the prompt that carries them.
package context

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured. It is
// what gpt-4 and gpt-4-turbo use and a reasonable approximation for the
// other providers.
const DefaultEncoding = "cl100k_base"

// Counter turns text into a token count. The registry depends on this
// interface rather than on tiktoken so tests can count deterministically.
type Counter interface {
	Count(s string) int
}

// Tokenizer wraps tiktoken for token counting.
type Tokenizer struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewTokenizer creates a Tokenizer for the named encoding. An empty name
// selects DefaultEncoding.
func NewTokenizer(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding %q: %w", encoding, err)
	}
	return &Tokenizer{enc: enc, encoding: encoding}, nil
}

// NewTokenizerForModel picks the encoding tiktoken associates with model,
// falling back to DefaultEncoding for models it does not know (claude,
// gemini, local models).
func NewTokenizerForModel(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return NewTokenizer(DefaultEncoding)
	}
	return &Tokenizer{enc: enc, encoding: "model:" + model}, nil
}

// Encoding reports the encoding name the tokenizer was built with.
func (t *Tokenizer) Encoding() string { return t.encoding }

// Count returns the number of tokens in s.
func (t *Tokenizer) Count(s string) int {
	if s == "" {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}
