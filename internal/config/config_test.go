package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
		"AI_PROVIDER", "CLAUDE_MODEL", "OPENAI_MODEL",
		"LOCAL_LLM_URL", "LOCAL_LLM_MODEL",
		"BLENDER_PATH", "BLENDER_MODE", "EXPORT_FORMAT", "MAX_RETRIES",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.AI.Provider != "claude" {
		t.Errorf("Provider = %q, want claude", cfg.AI.Provider)
	}
	if cfg.Blender.DefaultMode != "background" {
		t.Errorf("DefaultMode = %q, want background", cfg.Blender.DefaultMode)
	}
	if cfg.Output.ExportFormat != "obj" {
		t.Errorf("ExportFormat = %q, want obj", cfg.Output.ExportFormat)
	}
	if !cfg.Output.AutoSave || cfg.Output.AutoRender || cfg.Output.AutoExport {
		t.Errorf("output defaults = render:%v export:%v save:%v, want only save on",
			cfg.Output.AutoRender, cfg.Output.AutoExport, cfg.Output.AutoSave)
	}
	if cfg.Pipeline.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Pipeline.MaxRetries)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "claude" {
		t.Errorf("Provider = %q, want default", cfg.AI.Provider)
	}
}

func TestLoadReadsYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `ai:
  provider: local
  local_model: mistral
blender:
  default_mode: gui
output:
  export_format: fbx
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "local" {
		t.Errorf("Provider = %q, want local", cfg.AI.Provider)
	}
	if cfg.AI.LocalModel != "mistral" {
		t.Errorf("LocalModel = %q, want mistral", cfg.AI.LocalModel)
	}
	if cfg.Blender.DefaultMode != "gui" {
		t.Errorf("DefaultMode = %q, want gui", cfg.Blender.DefaultMode)
	}
	if cfg.Output.ExportFormat != "fbx" {
		t.Errorf("ExportFormat = %q, want fbx", cfg.Output.ExportFormat)
	}
	// Untouched fields keep their defaults.
	if cfg.Pipeline.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Pipeline.MaxRetries)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("BLENDER_PATH", "/opt/blender/blender")
	t.Setenv("MAX_RETRIES", "5")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.AnthropicAPIKey != "test-key" {
		t.Errorf("AnthropicAPIKey = %q", cfg.AI.AnthropicAPIKey)
	}
	if cfg.AI.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.AI.Provider)
	}
	if cfg.Blender.Path != "/opt/blender/blender" {
		t.Errorf("Blender.Path = %q", cfg.Blender.Path)
	}
	if cfg.Pipeline.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Pipeline.MaxRetries)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "gemini")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ai:\n  provider: local\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "gemini" {
		t.Errorf("Provider = %q, want env to win", cfg.AI.Provider)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid claude",
			mutate:  func(c *Config) { c.AI.AnthropicAPIKey = "k" },
			wantErr: "",
		},
		{
			name:    "missing claude key",
			mutate:  func(c *Config) {},
			wantErr: "ANTHROPIC_API_KEY",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.AI.Provider = "bard" },
			wantErr: "invalid AI provider",
		},
		{
			name: "local needs no key",
			mutate: func(c *Config) {
				c.AI.Provider = "local"
			},
			wantErr: "",
		},
		{
			name: "bad mode",
			mutate: func(c *Config) {
				c.AI.AnthropicAPIKey = "k"
				c.Blender.DefaultMode = "headless"
			},
			wantErr: "invalid blender mode",
		},
		{
			name: "bad export format",
			mutate: func(c *Config) {
				c.AI.AnthropicAPIKey = "k"
				c.Output.ExportFormat = "usd"
			},
			wantErr: "invalid export format",
		},
		{
			name: "bad engine",
			mutate: func(c *Config) {
				c.AI.AnthropicAPIKey = "k"
				c.Output.RenderEngine = "LUXRENDER"
			},
			wantErr: "invalid render engine",
		},
		{
			name: "zero retries",
			mutate: func(c *Config) {
				c.AI.AnthropicAPIKey = "k"
				c.Pipeline.MaxRetries = 0
			},
			wantErr: "max_retries",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.AI.Provider = "local"
	cfg.Output.RenderSamples = 64

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AI.Provider != "local" {
		t.Errorf("Provider = %q", loaded.AI.Provider)
	}
	if loaded.Output.RenderSamples != 64 {
		t.Errorf("RenderSamples = %d", loaded.Output.RenderSamples)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.BaseDir = t.TempDir()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{
		cfg.GeneratedDir(), cfg.ArchiveDir(), cfg.RendersDir(), cfg.ModelsDir(), cfg.BlendDir(),
	} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s missing: %v", dir, err)
		}
	}
}

func TestTimeoutParsing(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetAITimeout(); got != 120*time.Second {
		t.Errorf("GetAITimeout = %v", got)
	}
	if got := cfg.GetBlenderTimeout(); got != 300*time.Second {
		t.Errorf("GetBlenderTimeout = %v", got)
	}

	cfg.AI.Timeout = "not-a-duration"
	if got := cfg.GetAITimeout(); got != 120*time.Second {
		t.Errorf("GetAITimeout fallback = %v", got)
	}
}

func TestPromptFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.BaseDir = "/ws"

	cases := []struct {
		promptType string
		want       string
	}{
		{"base", "base_system_prompt.txt"},
		{"modeling", "modeling_expert.txt"},
		{"material", "material_expert.txt"},
		{"scene", "scene_expert.txt"},
		{"animation", "animation_expert.txt"},
		{"mixed", "base_system_prompt.txt"},
		{"", "base_system_prompt.txt"},
	}
	for _, tc := range cases {
		got := cfg.PromptFile(tc.promptType)
		want := filepath.Join("/ws", "prompts", tc.want)
		if got != want {
			t.Errorf("PromptFile(%q) = %q, want %q", tc.promptType, got, want)
		}
	}
}
