// Package cli defines the Cobra command tree for the localchat CLI.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/localchat/localchat/internal/adapter"
	"github.com/localchat/localchat/internal/config"
	ctxpkg "github.com/localchat/localchat/internal/context"
	"github.com/localchat/localchat/internal/db"
	"github.com/localchat/localchat/internal/logging"
	"github.com/localchat/localchat/internal/registry"
	"github.com/localchat/localchat/internal/scanner"
	"github.com/localchat/localchat/internal/store"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type rootOptions struct {
	persist   bool
	directory string
	model     string
	debug     bool
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:   "localchat",
		Short: "Chat with a language model about your local files",
		Long: `localchat is a terminal chat client that sends the files you track along
with every message, so the model can answer questions about your code.

Track files with /add and /add_dir, check the token budget with /list,
and type anything else to talk to the model. /help lists every command.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.persist, "persist", false, "save tracked files and lenses in .localchat/ and restore them next time")
	f.StringVarP(&opts.directory, "directory", "d", "", "track every file under this directory at startup")
	f.StringVarP(&opts.model, "model", "m", "", "provider to chat with: claude, openai, gemini, ollama")
	f.BoolVar(&opts.debug, "debug", false, "write debug-level logs")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "localchat %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// loadConfig resolves the effective configuration for root with the flag
// overrides applied.
func loadConfig(root string, opts rootOptions) (config.GlobalConfig, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return cfg, err
	}
	if opts.model != "" {
		cfg.DefaultModel = opts.model
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	provider := cfg.DefaultModel
	if adapter.NeedsAPIKey(provider) && cfg.APIKey(provider) == "" {
		return cfg, fmt.Errorf("no API key for %s: set %s or LOCALCHAT_API_KEY, or add it under [keys] in ~/.config/localchat/config.toml",
			provider, keyEnvVar(provider))
	}
	return cfg, nil
}

func keyEnvVar(provider string) string {
	switch provider {
	case adapter.ProviderClaude:
		return "ANTHROPIC_API_KEY"
	case adapter.ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// newTokenizer uses the configured encoding, or the one tiktoken associates
// with model when none is set.
func newTokenizer(encoding, model string) (*ctxpkg.Tokenizer, error) {
	if encoding != "" {
		return ctxpkg.NewTokenizer(encoding)
	}
	return ctxpkg.NewTokenizerForModel(model)
}

// modelName is the model requests go to: the configured one, or the
// adapter's default.
func modelName(cfg config.GlobalConfig, llm adapter.LLMAdapter) string {
	if name := cfg.ModelName(); name != "" {
		return name
	}
	return llm.Info().Name
}

func runChat(cmd *cobra.Command, opts rootOptions) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := loadConfig(root, opts)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	logCloser, err := logging.Setup(logging.Options{
		File:      cfg.Log.File,
		Level:     cfg.Log.Level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Debug:     opts.debug,
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.Info("session start", "version", version, "provider", cfg.DefaultModel, "root", root, "persist", opts.persist)

	provider := cfg.DefaultModel
	llm, err := adapter.New(provider, adapter.Options{
		APIKey:     cfg.APIKey(provider),
		BaseURL:    cfg.Model.BaseURL,
		OllamaHost: cfg.Ollama.Host,
	})
	if err != nil {
		return fmt.Errorf("init LLM adapter: %w", err)
	}

	cfg.FitModelWindow(llm.Info().MaxContextWindow)
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.Debug("budget", "max_context_tokens", cfg.Context.MaxContextTokens, "reserved_tokens", cfg.Context.ReservedTokens)

	tokenizer, err := newTokenizer(cfg.Context.Encoding, modelName(cfg, llm))
	if err != nil {
		return fmt.Errorf("init tokenizer: %w", err)
	}

	var st *store.Store
	if opts.persist {
		database, err := db.Open(config.StateDBPath(root))
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		defer database.Close()
		st = store.NewStore(database)
	}

	out := cmd.OutOrStdout()
	var progress io.Writer
	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))
	if stdoutTTY {
		progress = os.Stderr
	}

	session := NewSession(SessionOptions{
		Registry:     registry.New(tokenizer, cfg.Limits()),
		LLM:          llm,
		Store:        st,
		Root:         root,
		SystemPrompt: cfg.Model.SystemPrompt,
		Model:        cfg.ModelName(),
		MaxTokens:    cfg.Model.MaxTokens,
		Temperature:  cfg.Model.Temperature,
		Timeout:      cfg.Timeout(),
		Walk: scanner.Options{
			RespectGitignore: cfg.Context.RespectGitignore,
			MaxFileTokens:    cfg.Context.MaxFileTokens,
		},
		Out:      out,
		Progress: progress,
		Color:    cfg.Output.Color && stdoutTTY,
		Markdown: cfg.Output.Markdown && stdoutTTY,
	})

	if err := session.Restore(); err != nil {
		return fmt.Errorf("restore tracked files: %w", err)
	}
	if opts.directory != "" {
		session.addDir(opts.directory)
	}

	in := newLineReader(os.Stdin, out, historyFile())
	defer in.Close()

	err = session.Run(cmd.Context(), in)
	slog.Info("session end", "tracked", session.reg.Len(), "turns", len(session.History())/2)
	return err
}
