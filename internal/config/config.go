// Package config manages global (~/.config/localchat/config.toml) and
// per-project (.localchat/config.toml) configuration for localchat.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	ctxpkg "github.com/localchat/localchat/internal/context"
)

// GlobalConfig holds user-wide settings.
type GlobalConfig struct {
	DefaultModel string        `toml:"default_model"`
	Keys         KeysConfig    `toml:"keys"`
	Model        ModelConfig   `toml:"model"`
	Ollama       OllamaConfig  `toml:"ollama"`
	Context      ContextConfig `toml:"context"`
	Output       OutputConfig  `toml:"output"`
	Log          LogConfig     `toml:"log"`

	// fallbackKey comes from LOCALCHAT_API_KEY and serves whichever
	// provider has no key of its own.
	fallbackKey string
	// windowSet and reserveSet record whether max_context_tokens and
	// reserved_tokens came from a config file rather than the defaults.
	windowSet  bool
	reserveSet bool
}

type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
	Gemini    string `toml:"gemini"`
}

// ModelConfig tunes the chat requests. An empty Name lets the provider
// adapter pick its default model.
type ModelConfig struct {
	Name           string  `toml:"name"`
	BaseURL        string  `toml:"base_url"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float64 `toml:"temperature"`
	SystemPrompt   string  `toml:"system_prompt"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

type OllamaConfig struct {
	Host            string `toml:"host"`
	CompletionModel string `toml:"completion_model"`
}

// ContextConfig holds the token budget. Files may use up to
// MaxContextTokens - ReservedTokens tokens in total. An empty Encoding picks
// the one tiktoken associates with the model.
type ContextConfig struct {
	MaxContextTokens int    `toml:"max_context_tokens"`
	ReservedTokens   int    `toml:"reserved_tokens"`
	MaxFileTokens    int    `toml:"max_file_tokens"`
	Encoding         string `toml:"encoding"`
	RespectGitignore bool   `toml:"respect_gitignore"`
}

type OutputConfig struct {
	Color    bool `toml:"color"`
	Markdown bool `toml:"markdown"`
}

type LogConfig struct {
	File      string `toml:"file"`
	Level     string `toml:"level"`
	MaxSizeMB int    `toml:"max_size_mb"`
}

// ProjectConfig holds per-project overrides stored in .localchat/config.toml.
// Zero values leave the global setting alone.
type ProjectConfig struct {
	DefaultModel string             `toml:"default_model"`
	Model        ModelConfig        `toml:"model"`
	Context      ProjectContextConf `toml:"context"`
}

type ProjectContextConf struct {
	MaxContextTokens int   `toml:"max_context_tokens"`
	ReservedTokens   int   `toml:"reserved_tokens"`
	MaxFileTokens    int   `toml:"max_file_tokens"`
	RespectGitignore *bool `toml:"respect_gitignore"`
}

// DefaultGlobal returns sensible defaults.
func DefaultGlobal() GlobalConfig {
	return GlobalConfig{
		DefaultModel: "openai",
		Model: ModelConfig{
			MaxTokens:      4096,
			Temperature:    0.2,
			TimeoutSeconds: 120,
		},
		Ollama: OllamaConfig{
			Host:            "http://localhost:11434",
			CompletionModel: "llama3.2",
		},
		Context: ContextConfig{
			MaxContextTokens: 128000,
			ReservedTokens:   28000,
			MaxFileTokens:    20000,
		},
		Output: OutputConfig{
			Color:    true,
			Markdown: true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "localchat", "config.toml"), nil
}

// LoadGlobal loads the global config, applying defaults for any missing
// values. API keys from the environment override the file.
func LoadGlobal() (GlobalConfig, error) {
	cfg := DefaultGlobal()

	path, err := GlobalConfigPath()
	if err == nil {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case err == nil:
			cfg.windowSet = md.IsDefined("context", "max_context_tokens")
			cfg.reserveSet = md.IsDefined("context", "reserved_tokens")
		case !errors.Is(err, fs.ErrNotExist):
			return cfg, fmt.Errorf("config: load global: %w", err)
		}
	}

	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// applyEnv lets env vars override config file API keys.
func applyEnv(cfg *GlobalConfig, getenv func(string) string) {
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Keys.Anthropic = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.Keys.OpenAI = v
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		cfg.Keys.Gemini = v
	}
}

// LoadProject loads .localchat/config.toml from the given project root.
func LoadProject(root string) (ProjectConfig, error) {
	var cfg ProjectConfig
	path := filepath.Join(ProjectConfigDirPath(root), "config.toml")

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("config: load project: %w", err)
	}
	return cfg, nil
}

// ProjectConfigDirPath returns the path to the project's .localchat/ directory.
func ProjectConfigDirPath(root string) string {
	return filepath.Join(root, ".localchat")
}

// StateDBPath returns the path to the SQLite database used by --persist.
func StateDBPath(root string) string {
	return filepath.Join(ProjectConfigDirPath(root), "localchat.db")
}

// Load returns the effective config for a project root: defaults, then the
// global file, then the project file, then keys from root/.env and the
// environment. The result is validated.
func Load(root string) (GlobalConfig, error) {
	global, err := LoadGlobal()
	if err != nil {
		return global, err
	}

	project, err := LoadProject(root)
	if err != nil {
		return global, err
	}
	global.merge(project)

	dotenv, err := godotenv.Read(filepath.Join(root, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return global, fmt.Errorf("config: load .env: %w", err)
	}
	applyEnv(&global, func(k string) string {
		if v := os.Getenv(k); v != "" {
			return v
		}
		return dotenv[k]
	})
	global.fallbackKey = os.Getenv("LOCALCHAT_API_KEY")
	if global.fallbackKey == "" {
		global.fallbackKey = dotenv["LOCALCHAT_API_KEY"]
	}

	return global, global.Validate()
}

func (c *GlobalConfig) merge(p ProjectConfig) {
	if p.DefaultModel != "" {
		c.DefaultModel = p.DefaultModel
	}
	if p.Model.Name != "" {
		c.Model.Name = p.Model.Name
	}
	if p.Model.BaseURL != "" {
		c.Model.BaseURL = p.Model.BaseURL
	}
	if p.Model.MaxTokens > 0 {
		c.Model.MaxTokens = p.Model.MaxTokens
	}
	if p.Model.Temperature != 0 {
		c.Model.Temperature = p.Model.Temperature
	}
	if p.Model.SystemPrompt != "" {
		c.Model.SystemPrompt = p.Model.SystemPrompt
	}
	if p.Model.TimeoutSeconds > 0 {
		c.Model.TimeoutSeconds = p.Model.TimeoutSeconds
	}
	if p.Context.MaxContextTokens > 0 {
		c.Context.MaxContextTokens = p.Context.MaxContextTokens
		c.windowSet = true
	}
	if p.Context.ReservedTokens > 0 {
		c.Context.ReservedTokens = p.Context.ReservedTokens
		c.reserveSet = true
	}
	if p.Context.MaxFileTokens > 0 {
		c.Context.MaxFileTokens = p.Context.MaxFileTokens
	}
	if p.Context.RespectGitignore != nil {
		c.Context.RespectGitignore = *p.Context.RespectGitignore
	}
}

// Validate reports settings the program cannot start with.
func (c GlobalConfig) Validate() error {
	switch c.DefaultModel {
	case "claude", "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("config: unknown default_model %q; valid: claude, openai, gemini, ollama", c.DefaultModel)
	}
	if err := c.Limits().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Context.MaxFileTokens < 0 {
		return fmt.Errorf("config: max_file_tokens must not be negative, got %d", c.Context.MaxFileTokens)
	}
	return nil
}

// Limits returns the token budget limits.
func (c GlobalConfig) Limits() ctxpkg.Limits {
	return ctxpkg.Limits{
		MaxContextTokens: c.Context.MaxContextTokens,
		ReservedTokens:   c.Context.ReservedTokens,
	}
}

// FitModelWindow sizes the budget to the model's context window unless
// max_context_tokens was configured. An unconfigured reserved_tokens keeps
// the default share of the window. A window <= 0 changes nothing.
func (c *GlobalConfig) FitModelWindow(window int) {
	if window <= 0 || c.windowSet {
		return
	}
	def := DefaultGlobal().Context
	c.Context.MaxContextTokens = window
	if !c.reserveSet {
		c.Context.ReservedTokens = window * def.ReservedTokens / def.MaxContextTokens
	}
}

// APIKey returns the key for provider, falling back to LOCALCHAT_API_KEY.
// It returns "" when neither is configured.
func (c GlobalConfig) APIKey(provider string) string {
	var key string
	switch strings.ToLower(provider) {
	case "claude":
		key = c.Keys.Anthropic
	case "openai":
		key = c.Keys.OpenAI
	case "gemini":
		key = c.Keys.Gemini
	}
	if key == "" {
		key = c.fallbackKey
	}
	return key
}

// ModelName returns the model to request: the configured name, or the
// Ollama completion model when Ollama is the provider.
func (c GlobalConfig) ModelName() string {
	if c.Model.Name != "" {
		return c.Model.Name
	}
	if c.DefaultModel == "ollama" {
		return c.Ollama.CompletionModel
	}
	return ""
}

// Timeout is the per-request deadline for model calls.
func (c GlobalConfig) Timeout() time.Duration {
	if c.Model.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}
