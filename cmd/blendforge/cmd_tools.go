package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"blendforge/internal/blender"
	"blendforge/internal/prompt"
	"blendforge/internal/validate"
)

// analyzeCmd classifies a prompt without calling an LLM or Blender.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [prompt]",
	Short: "Analyze a prompt without generating anything",
	Long: `Runs the prompt classifier only: category, complexity, extracted
entities and measurements, and the enhanced prompt that would be sent to
the model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		p := prompt.New(logger)
		result := p.Process(text)

		fmt.Printf("Category:   %s\n", result.Category)
		fmt.Printf("Complexity: %s\n", result.Complexity)
		fmt.Printf("Template:   %s\n", result.PromptType)
		if len(result.Entities.Objects) > 0 {
			fmt.Printf("Objects:    %s\n", strings.Join(result.Entities.Objects, ", "))
		}
		if len(result.Entities.Colors) > 0 {
			fmt.Printf("Colors:     %s\n", strings.Join(result.Entities.Colors, ", "))
		}
		if len(result.Entities.Materials) > 0 {
			fmt.Printf("Materials:  %s\n", strings.Join(result.Entities.Materials, ", "))
		}
		for _, q := range result.Entities.Quantities {
			fmt.Printf("Quantity:   %d %s\n", q.Count, q.Noun)
		}
		for _, m := range result.Measurements {
			fmt.Printf("Measure:    %g %s = %g %s\n",
				m.OriginalValue, m.OriginalUnit, m.BlenderValue, m.BlenderUnit)
		}
		fmt.Printf("Enhanced:   %s\n", result.Enhanced)

		suggestFor(text)
		return nil
	},
}

// validateCmd runs the static checks against an existing script.
var validateCmd = &cobra.Command{
	Use:   "validate [script.py]",
	Short: "Validate a Blender Python script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		v := validate.New(logger)
		report, err := v.Validate(cmd.Context(), string(code))
		if err != nil {
			return err
		}

		for _, e := range report.Errors {
			fmt.Printf("error:      %s\n", e)
		}
		for _, w := range report.Warnings {
			fmt.Printf("warning:    %s\n", w)
		}
		for _, s := range report.Suggestions {
			fmt.Printf("suggestion: %s\n", s)
		}

		if !report.IsValid {
			return fmt.Errorf("%s failed validation", filepath.Base(args[0]))
		}
		fmt.Printf("%s is valid\n", filepath.Base(args[0]))
		return nil
	},
}

var fixWrite bool

func init() {
	fixCmd.Flags().BoolVarP(&fixWrite, "write", "w", false, "write the fixed script back to the file")
}

// fixCmd applies the mechanical repairs and prints or writes the result.
var fixCmd = &cobra.Command{
	Use:   "fix [script.py]",
	Short: "Apply automatic fixes to a Blender Python script",
	Long: `Prepends a missing bpy import and inserts a scene-clear block after
the imports when the script lacks one. With --write the file is updated
in place; otherwise the fixed script goes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		fixed := validate.AutoFix(string(code))
		if !fixWrite {
			fmt.Print(fixed)
			return nil
		}

		if fixed == string(code) {
			fmt.Println("no fixes needed")
			return nil
		}
		if err := os.WriteFile(args[0], []byte(fixed), 0o644); err != nil {
			return err
		}
		fmt.Printf("fixed %s\n", args[0])
		return nil
	},
}

// statusCmd reports the configured provider and whether Blender is usable.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider, Blender, and workspace status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Provider:      %s\n", cfg.AI.Provider)
		fmt.Printf("Model:         %s\n", providerModel())
		fmt.Printf("Export format: %s (supported: %s)\n",
			cfg.Output.ExportFormat, strings.Join(blender.SupportedExportFormats(), ", "))

		if _, err := blender.NewExecutor(blender.Options{
			Path:        cfg.Blender.Path,
			DefaultMode: cfg.Blender.DefaultMode,
			Timeout:     cfg.GetBlenderTimeout(),
		}, logger); err != nil {
			fmt.Printf("Blender:       unavailable (%v)\n", err)
		} else {
			fmt.Printf("Blender:       %s\n", cfg.Blender.Path)
		}

		fmt.Printf("Prompts dir:   %s\n", cfg.PromptsDir())
		fmt.Printf("Generated dir: %s\n", cfg.GeneratedDir())
		fmt.Printf("Renders dir:   %s\n", cfg.RendersDir())

		if err := cfg.Validate(); err != nil {
			fmt.Printf("Config:        invalid (%v)\n", err)
		} else {
			fmt.Printf("Config:        ok\n")
		}
		return nil
	},
}

// initCmd writes a starter config and workspace layout.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file and workspace directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}

		if err := cfg.Save(configPath); err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}

		fmt.Printf("wrote %s\n", configPath)
		fmt.Printf("created workspace under %s\n", cfg.Paths.BaseDir)
		fmt.Println("set ANTHROPIC_API_KEY (or the key for your provider) and run:")
		fmt.Println(`  blendforge "create a red cube"`)
		return nil
	},
}

func providerModel() string {
	switch cfg.AI.Provider {
	case "claude":
		return cfg.AI.ClaudeModel
	case "openai":
		return cfg.AI.OpenAIModel
	case "gemini":
		return cfg.AI.GeminiModel
	case "local":
		return cfg.AI.LocalModel
	default:
		return "unknown"
	}
}
