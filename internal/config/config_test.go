package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points HOME at a temp dir and clears the key variables so the
// developer's own config cannot leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "LOCALCHAT_API_KEY"} {
		t.Setenv(k, "")
	}
	return home
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultGlobal(t *testing.T) {
	cfg := DefaultGlobal()

	if cfg.DefaultModel != "openai" {
		t.Errorf("default model: got %q, want %q", cfg.DefaultModel, "openai")
	}
	if cfg.Context.MaxContextTokens != 128000 {
		t.Errorf("max context tokens: got %d, want 128000", cfg.Context.MaxContextTokens)
	}
	if cfg.Context.ReservedTokens != 28000 {
		t.Errorf("reserved tokens: got %d, want 28000", cfg.Context.ReservedTokens)
	}
	if cfg.Context.MaxFileTokens != 20000 {
		t.Errorf("max file tokens: got %d, want 20000", cfg.Context.MaxFileTokens)
	}
	if cfg.Context.Encoding != "" {
		t.Errorf("encoding should default to the model's, got %q", cfg.Context.Encoding)
	}
	if cfg.Context.RespectGitignore {
		t.Error("respect_gitignore should default to false")
	}
	if !cfg.Output.Color || !cfg.Output.Markdown {
		t.Error("color and markdown should default to true")
	}
	if cfg.Ollama.Host != "http://localhost:11434" {
		t.Errorf("ollama host: got %q", cfg.Ollama.Host)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.Limits().Capacity() != 100000 {
		t.Errorf("capacity: got %d, want 100000", cfg.Limits().Capacity())
	}
}

func TestLoadGlobal_MissingFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Context.MaxContextTokens != 128000 {
		t.Errorf("got %d", cfg.Context.MaxContextTokens)
	}
}

func TestLoadGlobal_FileAndEnv(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "localchat", "config.toml"), `
default_model = "claude"

[keys]
anthropic = "from-file"
openai = "openai-file"

[context]
max_context_tokens = 200000
`)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultModel != "claude" {
		t.Errorf("default model: got %q", cfg.DefaultModel)
	}
	if cfg.Keys.Anthropic != "from-env" {
		t.Errorf("env should override file key, got %q", cfg.Keys.Anthropic)
	}
	if cfg.Keys.OpenAI != "openai-file" {
		t.Errorf("openai key: got %q", cfg.Keys.OpenAI)
	}
	if cfg.Context.MaxContextTokens != 200000 || cfg.Context.ReservedTokens != 28000 {
		t.Errorf("context: %+v", cfg.Context)
	}
}

func TestLoadGlobal_EnvWithoutFile(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Keys.Gemini != "g-key" {
		t.Errorf("env key should apply without a config file, got %q", cfg.Keys.Gemini)
	}
}

func TestLoadGlobal_BadTOML(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "localchat", "config.toml"), "default_model = [")

	if _, err := LoadGlobal(); err == nil || !strings.Contains(err.Error(), "config: load global") {
		t.Errorf("expected load error, got %v", err)
	}
}

func TestLoad_ProjectOverridesAndDotenv(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, ".localchat", "config.toml"), `
default_model = "gemini"

[model]
name = "gemini-1.5-pro"

[context]
reserved_tokens = 1000
respect_gitignore = true
`)
	writeConfig(t, filepath.Join(root, ".env"), "GEMINI_API_KEY=dotenv-key\n")

	cfg, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultModel != "gemini" || cfg.ModelName() != "gemini-1.5-pro" {
		t.Errorf("model: %q %q", cfg.DefaultModel, cfg.ModelName())
	}
	if cfg.Context.ReservedTokens != 1000 || cfg.Context.MaxContextTokens != 128000 {
		t.Errorf("context: %+v", cfg.Context)
	}
	if !cfg.Context.RespectGitignore {
		t.Error("project respect_gitignore should apply")
	}
	if cfg.APIKey("gemini") != "dotenv-key" {
		t.Errorf("APIKey(gemini) = %q", cfg.APIKey("gemini"))
	}
}

func TestLoad_EnvBeatsDotenv(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, ".env"), "OPENAI_API_KEY=dotenv\n")
	t.Setenv("OPENAI_API_KEY", "shell")

	cfg, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.APIKey("openai"); got != "shell" {
		t.Errorf("APIKey(openai) = %q, want shell", got)
	}
}

func TestLoad_GenericKeyIsFallback(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	t.Setenv("LOCALCHAT_API_KEY", "generic")
	t.Setenv("ANTHROPIC_API_KEY", "specific")

	cfg, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey("openai") != "generic" {
		t.Errorf("APIKey(openai) = %q", cfg.APIKey("openai"))
	}
	if cfg.APIKey("claude") != "specific" {
		t.Errorf("APIKey(claude) = %q", cfg.APIKey("claude"))
	}
}

func TestLoad_InvalidLimits(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, ".localchat", "config.toml"), `
[context]
max_context_tokens = 1000
reserved_tokens = 1000
`)
	if _, err := Load(root); err == nil {
		t.Error("reserved == max should fail validation")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GlobalConfig)
		ok     bool
	}{
		{"defaults", func(*GlobalConfig) {}, true},
		{"ollama", func(c *GlobalConfig) { c.DefaultModel = "ollama" }, true},
		{"unknown provider", func(c *GlobalConfig) { c.DefaultModel = "gpt" }, false},
		{"zero max", func(c *GlobalConfig) { c.Context.MaxContextTokens = 0 }, false},
		{"negative reserved", func(c *GlobalConfig) { c.Context.ReservedTokens = -1 }, false},
		{"negative file limit", func(c *GlobalConfig) { c.Context.MaxFileTokens = -5 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGlobal()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestModelNameAndTimeout(t *testing.T) {
	cfg := DefaultGlobal()
	if cfg.ModelName() != "" {
		t.Errorf("openai with no name should defer to the adapter, got %q", cfg.ModelName())
	}
	cfg.DefaultModel = "ollama"
	if cfg.ModelName() != "llama3.2" {
		t.Errorf("ollama model: got %q", cfg.ModelName())
	}
	if cfg.Timeout() != 120*time.Second {
		t.Errorf("timeout: got %v", cfg.Timeout())
	}
	cfg.Model.TimeoutSeconds = 0
	if cfg.Timeout() != 0 {
		t.Errorf("zero timeout should disable the deadline, got %v", cfg.Timeout())
	}
}

func TestLoadProject_RoundTrip(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, ".localchat", "config.toml"), "default_model = \"claude\"\n")
	got, err := LoadProject(root)
	if err != nil {
		t.Fatal(err)
	}
	if got.DefaultModel != "claude" {
		t.Errorf("got %q", got.DefaultModel)
	}
}

func TestFitModelWindow_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg.FitModelWindow(32768)
	if cfg.Context.MaxContextTokens != 32768 || cfg.Context.ReservedTokens != 7168 {
		t.Errorf("context: %+v", cfg.Context)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("fitted limits should validate: %v", err)
	}
}

func TestFitModelWindow_ZeroWindowKeepsDefaults(t *testing.T) {
	cfg := DefaultGlobal()
	cfg.FitModelWindow(0)
	if cfg.Context.MaxContextTokens != 128000 || cfg.Context.ReservedTokens != 28000 {
		t.Errorf("context: %+v", cfg.Context)
	}
}

func TestFitModelWindow_ConfiguredWindowWins(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "localchat", "config.toml"), `
[context]
max_context_tokens = 64000
`)
	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatal(err)
	}
	cfg.FitModelWindow(32768)
	if cfg.Context.MaxContextTokens != 64000 || cfg.Context.ReservedTokens != 28000 {
		t.Errorf("context: %+v", cfg.Context)
	}
}

func TestFitModelWindow_ConfiguredReserveKept(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeConfig(t, filepath.Join(root, ".localchat", "config.toml"), `
[context]
reserved_tokens = 4000
`)
	cfg, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	cfg.FitModelWindow(200000)
	if cfg.Context.MaxContextTokens != 200000 || cfg.Context.ReservedTokens != 4000 {
		t.Errorf("context: %+v", cfg.Context)
	}
}

func TestStateDBPath(t *testing.T) {
	got := StateDBPath("/home/user/project")
	want := filepath.Join("/home/user/project", ".localchat", "localchat.db")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
