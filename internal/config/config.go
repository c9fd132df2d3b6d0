// Package config holds all blendforge configuration: AI provider settings,
// Blender invocation settings, output options, and workspace paths.
// Configuration is loaded from a YAML file with environment variable
// overrides for secrets and machine-local paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all blendforge configuration.
type Config struct {
	// AI provider configuration
	AI AIConfig `yaml:"ai"`

	// Blender invocation configuration
	Blender BlenderConfig `yaml:"blender"`

	// Output settings (render/export/save defaults)
	Output OutputConfig `yaml:"output"`

	// Pipeline behavior
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Workspace paths
	Paths PathsConfig `yaml:"paths"`
}

// AIConfig configures the code generator.
type AIConfig struct {
	Provider string `yaml:"provider"` // claude, openai, gemini, local

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`

	ClaudeModel string `yaml:"claude_model"`
	OpenAIModel string `yaml:"openai_model"`
	GeminiModel string `yaml:"gemini_model"`

	LocalURL   string `yaml:"local_url"`
	LocalModel string `yaml:"local_model"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// BlenderConfig configures the execution host.
type BlenderConfig struct {
	Path        string `yaml:"path"`         // blender binary, name or absolute path
	DefaultMode string `yaml:"default_mode"` // background or gui
	Timeout     string `yaml:"timeout"`      // per-script execution timeout
}

// OutputConfig configures what happens after a script executes.
type OutputConfig struct {
	AutoRender   bool   `yaml:"auto_render"`
	AutoExport   bool   `yaml:"auto_export"`
	AutoSave     bool   `yaml:"auto_save"`
	ExportFormat string `yaml:"export_format"` // obj, fbx, gltf, stl, ply

	RenderWidth   int    `yaml:"render_width"`
	RenderHeight  int    `yaml:"render_height"`
	RenderSamples int    `yaml:"render_samples"`
	RenderEngine  string `yaml:"render_engine"` // CYCLES or EEVEE
}

// PipelineConfig configures the generate-validate-execute loop.
type PipelineConfig struct {
	ValidateCode       bool `yaml:"validate_code"`
	SaveFailedCode     bool `yaml:"save_failed_code"`
	ArchiveGenerations bool `yaml:"archive_generations"`
	MaxRetries         int  `yaml:"max_retries"`
}

// PathsConfig holds the workspace directory layout.
type PathsConfig struct {
	BaseDir      string `yaml:"base_dir"`
	PromptsDir   string `yaml:"prompts_dir"`
	GeneratedDir string `yaml:"generated_dir"`
	ArchiveDir   string `yaml:"archive_dir"`
	RendersDir   string `yaml:"renders_dir"`
	ModelsDir    string `yaml:"models_dir"`
	BlendDir     string `yaml:"blend_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:    "claude",
			ClaudeModel: "claude-sonnet-4-20250514",
			OpenAIModel: "gpt-4-turbo-preview",
			GeminiModel: "gemini-2.5-flash",
			LocalURL:    "http://localhost:11434/api/generate",
			LocalModel:  "codellama",
			Temperature: 0.7,
			MaxTokens:   4000,
			Timeout:     "120s",
		},

		Blender: BlenderConfig{
			Path:        "blender",
			DefaultMode: "background",
			Timeout:     "300s",
		},

		Output: OutputConfig{
			AutoRender:    false,
			AutoExport:    false,
			AutoSave:      true,
			ExportFormat:  "obj",
			RenderWidth:   1920,
			RenderHeight:  1080,
			RenderSamples: 128,
			RenderEngine:  "CYCLES",
		},

		Pipeline: PipelineConfig{
			ValidateCode:       true,
			SaveFailedCode:     true,
			ArchiveGenerations: true,
			MaxRetries:         3,
		},

		Paths: PathsConfig{
			BaseDir:      ".",
			PromptsDir:   "prompts",
			GeneratedDir: "generated",
			ArchiveDir:   filepath.Join("generated", "archive"),
			RendersDir:   filepath.Join("output", "renders"),
			ModelsDir:    filepath.Join("output", "models"),
			BlendDir:     filepath.Join("output", "blend_files"),
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file is not an error; defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.AI.AnthropicAPIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.AI.OpenAIAPIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.AI.GeminiAPIKey = key
	}
	if p := os.Getenv("AI_PROVIDER"); p != "" {
		c.AI.Provider = p
	}
	if m := os.Getenv("CLAUDE_MODEL"); m != "" {
		c.AI.ClaudeModel = m
	}
	if m := os.Getenv("OPENAI_MODEL"); m != "" {
		c.AI.OpenAIModel = m
	}
	if url := os.Getenv("LOCAL_LLM_URL"); url != "" {
		c.AI.LocalURL = url
	}
	if m := os.Getenv("LOCAL_LLM_MODEL"); m != "" {
		c.AI.LocalModel = m
	}
	if p := os.Getenv("BLENDER_PATH"); p != "" {
		c.Blender.Path = p
	}
	if m := os.Getenv("BLENDER_MODE"); m != "" {
		c.Blender.DefaultMode = m
	}
	if f := os.Getenv("EXPORT_FORMAT"); f != "" {
		c.Output.ExportFormat = f
	}
	if r := os.Getenv("MAX_RETRIES"); r != "" {
		if n, err := strconv.Atoi(r); err == nil && n > 0 {
			c.Pipeline.MaxRetries = n
		}
	}
}

// ValidProviders lists all supported AI providers.
var ValidProviders = []string{"claude", "openai", "gemini", "local"}

// validExportFormats lists the export formats the executor knows how to emit.
var validExportFormats = []string{"obj", "fbx", "gltf", "stl", "ply"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.AI.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid AI provider: %s (valid: %v)", c.AI.Provider, ValidProviders)
	}

	switch c.AI.Provider {
	case "claude":
		if c.AI.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when provider is claude")
		}
	case "openai":
		if c.AI.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when provider is openai")
		}
	case "gemini":
		if c.AI.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when provider is gemini")
		}
	}

	if c.Blender.DefaultMode != "background" && c.Blender.DefaultMode != "gui" {
		return fmt.Errorf("invalid blender mode: %s (must be background or gui)", c.Blender.DefaultMode)
	}

	validFormat := false
	for _, f := range validExportFormats {
		if c.Output.ExportFormat == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid export format: %s (valid: %v)", c.Output.ExportFormat, validExportFormats)
	}

	if c.Output.RenderEngine != "CYCLES" && c.Output.RenderEngine != "EEVEE" {
		return fmt.Errorf("invalid render engine: %s (must be CYCLES or EEVEE)", c.Output.RenderEngine)
	}

	if c.Pipeline.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.Pipeline.MaxRetries)
	}

	return nil
}

// EnsureDirectories creates all output directories if they don't exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.GeneratedDir(),
		c.ArchiveDir(),
		c.RendersDir(),
		c.ModelsDir(),
		c.BlendDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetAITimeout returns the AI request timeout as a duration.
func (c *Config) GetAITimeout() time.Duration {
	d, err := time.ParseDuration(c.AI.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetBlenderTimeout returns the Blender execution timeout as a duration.
func (c *Config) GetBlenderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Blender.Timeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Paths.BaseDir, dir)
}

// PromptsDir returns the absolute prompts directory.
func (c *Config) PromptsDir() string { return c.resolve(c.Paths.PromptsDir) }

// GeneratedDir returns the absolute generated-scripts directory.
func (c *Config) GeneratedDir() string { return c.resolve(c.Paths.GeneratedDir) }

// ArchiveDir returns the absolute archive directory.
func (c *Config) ArchiveDir() string { return c.resolve(c.Paths.ArchiveDir) }

// RendersDir returns the absolute renders directory.
func (c *Config) RendersDir() string { return c.resolve(c.Paths.RendersDir) }

// ModelsDir returns the absolute exported-models directory.
func (c *Config) ModelsDir() string { return c.resolve(c.Paths.ModelsDir) }

// BlendDir returns the absolute .blend files directory.
func (c *Config) BlendDir() string { return c.resolve(c.Paths.BlendDir) }

// PromptFile returns the system-prompt file for a prompt type.
// Unknown types fall back to the base prompt.
func (c *Config) PromptFile(promptType string) string {
	files := map[string]string{
		"base":      "base_system_prompt.txt",
		"modeling":  "modeling_expert.txt",
		"material":  "material_expert.txt",
		"scene":     "scene_expert.txt",
		"animation": "animation_expert.txt",
	}

	name, ok := files[promptType]
	if !ok {
		name = files["base"]
	}
	return filepath.Join(c.PromptsDir(), name)
}
