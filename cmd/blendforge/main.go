package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"blendforge/internal/blender"
	"blendforge/internal/config"
	"blendforge/internal/generate"
	"blendforge/internal/pipeline"
	"blendforge/internal/prompt"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	provider    string
	mode        string
	doRender    bool
	doExport    bool
	doSave      bool
	noValidate  bool
	interactive bool

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd turns a natural-language prompt into an executed Blender scene.
var rootCmd = &cobra.Command{
	Use:   "blendforge [prompt]",
	Short: "blendforge - natural language to Blender scenes",
	Long: `blendforge turns plain-English descriptions into Blender scenes.

A prompt is classified and enriched, handed to an LLM that writes Blender
Python, statically validated, and executed in a Blender subprocess with
optional render, model export, and .blend save stages.

Examples:
  blendforge "create a red cube on a wooden table"
  blendforge --render --export "a low-poly tree"
  blendforge --interactive`,
	Args: cobra.ArbitraryArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if provider != "" {
			cfg.AI.Provider = provider
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runRoot,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "blendforge.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "AI provider override (claude, openai, gemini, local)")

	rootCmd.Flags().StringVar(&mode, "mode", "", "execution mode (background or gui)")
	rootCmd.Flags().BoolVar(&doRender, "render", false, "render the scene to an image")
	rootCmd.Flags().BoolVar(&doExport, "export", false, "export the scene to a model file")
	rootCmd.Flags().BoolVar(&doSave, "save", false, "save the scene as a .blend file")
	rootCmd.Flags().BoolVar(&noValidate, "no-validate", false, "skip code validation")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "interactive prompt loop")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(initCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	if !interactive && len(args) == 0 {
		return cmd.Help()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, templates, err := buildRunner(ctx)
	if err != nil {
		return err
	}

	// Reload templates edited while a session is running.
	go func() {
		if err := templates.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("template watcher stopped", zap.Error(err))
		}
	}()

	opts := runOptions(cmd)

	if interactive {
		return interactiveLoop(ctx, runner, opts)
	}

	return runOnce(ctx, runner, strings.Join(args, " "), opts)
}

// runOptions resolves flags against config defaults. An untouched flag
// means the configured default applies.
func runOptions(cmd *cobra.Command) pipeline.Options {
	opts := pipeline.Options{
		Mode:       cfg.Blender.DefaultMode,
		Render:     cfg.Output.AutoRender,
		Export:     cfg.Output.AutoExport,
		Save:       cfg.Output.AutoSave,
		Validate:   cfg.Pipeline.ValidateCode,
		MaxRetries: cfg.Pipeline.MaxRetries,
	}
	if mode != "" {
		opts.Mode = mode
	}
	if cmd.Flags().Changed("render") {
		opts.Render = doRender
	}
	if cmd.Flags().Changed("export") {
		opts.Export = doExport
	}
	if cmd.Flags().Changed("save") {
		opts.Save = doSave
	}
	if noValidate {
		opts.Validate = false
	}
	return opts
}

// buildRunner assembles the pipeline from config: LLM client, template
// store, generator, and a verified Blender executor.
func buildRunner(ctx context.Context) (*pipeline.Runner, *generate.TemplateStore, error) {
	client, err := buildClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	templates := generate.NewTemplateStore(cfg.PromptsDir(), logger)
	generator := generate.NewGenerator(client, templates, logger)

	executor, err := blender.NewExecutor(blender.Options{
		Path:         cfg.Blender.Path,
		DefaultMode:  cfg.Blender.DefaultMode,
		Timeout:      cfg.GetBlenderTimeout(),
		GeneratedDir: cfg.GeneratedDir(),
		RendersDir:   cfg.RendersDir(),
		ModelsDir:    cfg.ModelsDir(),
		BlendDir:     cfg.BlendDir(),
		ExportFormat: cfg.Output.ExportFormat,
		Render: blender.RenderSettings{
			Width:   cfg.Output.RenderWidth,
			Height:  cfg.Output.RenderHeight,
			Samples: cfg.Output.RenderSamples,
			Engine:  cfg.Output.RenderEngine,
		},
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return pipeline.NewRunner(cfg, generator, executor, logger), templates, nil
}

// buildClient constructs the LLM client for the configured provider.
func buildClient(ctx context.Context) (generate.Client, error) {
	switch cfg.AI.Provider {
	case "claude":
		return generate.NewAnthropicClientWithConfig(generate.AnthropicConfig{
			APIKey:      cfg.AI.AnthropicAPIKey,
			BaseURL:     "https://api.anthropic.com/v1",
			Model:       cfg.AI.ClaudeModel,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.GetAITimeout(),
		}), nil
	case "openai":
		return generate.NewOpenAIClientWithConfig(generate.OpenAIConfig{
			APIKey:      cfg.AI.OpenAIAPIKey,
			BaseURL:     "https://api.openai.com/v1",
			Model:       cfg.AI.OpenAIModel,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.GetAITimeout(),
		}), nil
	case "gemini":
		return generate.NewGeminiClientWithConfig(ctx, generate.GeminiConfig{
			APIKey:      cfg.AI.GeminiAPIKey,
			Model:       cfg.AI.GeminiModel,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.GetAITimeout(),
		})
	case "local":
		return generate.NewOllamaClientWithConfig(generate.OllamaConfig{
			URL:         cfg.AI.LocalURL,
			Model:       cfg.AI.LocalModel,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.GetAITimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.AI.Provider)
	}
}

// runOnce handles a single prompt and prints the outcome.
func runOnce(ctx context.Context, runner *pipeline.Runner, text string, opts pipeline.Options) error {
	fmt.Printf("Prompt: %s\n", text)

	outcome, err := runner.Run(ctx, text, opts)
	if outcome != nil && outcome.Processed != nil {
		fmt.Printf("Analysis: %s\n", outcome.Processed.Describe())
	}
	if err != nil {
		return err
	}

	printOutcome(outcome)
	return nil
}

func printOutcome(outcome *pipeline.Outcome) {
	if outcome.Report != nil && len(outcome.Report.Warnings) > 0 {
		fmt.Println("Warnings:")
		warnings := outcome.Report.Warnings
		if len(warnings) > 3 {
			warnings = warnings[:3]
		}
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	if outcome.Success {
		fmt.Println("Blender execution completed")
		if outcome.RenderPath != "" {
			fmt.Printf("  Render:     %s\n", outcome.RenderPath)
		}
		if outcome.ExportPath != "" {
			fmt.Printf("  Export:     %s\n", outcome.ExportPath)
		}
		if outcome.BlendPath != "" {
			fmt.Printf("  Blend file: %s\n", outcome.BlendPath)
		}
		fmt.Printf("  Script:     %s\n", outcome.ScriptPath)
		return
	}

	fmt.Println("Execution failed")
	stderr := outcome.Stderr
	if len(stderr) > 500 {
		stderr = stderr[:500]
	}
	if stderr != "" {
		fmt.Printf("Blender output:\n%s\n", stderr)
	}
	if outcome.FailedPath != "" {
		fmt.Printf("Failed code saved to: %s\n", outcome.FailedPath)
	}
}

// interactiveLoop reads prompts from stdin until quit/exit/q or EOF.
func interactiveLoop(ctx context.Context, runner *pipeline.Runner, opts pipeline.Options) error {
	fmt.Println("Interactive mode. Enter prompts to generate Blender scenes.")
	fmt.Println("Type 'quit', 'exit', or 'q' to leave.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		switch strings.ToLower(text) {
		case "quit", "exit", "q":
			fmt.Println("Goodbye.")
			return nil
		}

		if err := runOnce(ctx, runner, text, opts); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// suggestFor prints prompt improvement hints, shared by root and analyze.
func suggestFor(text string) {
	p := prompt.New(logger)
	if hints := p.SuggestImprovements(text); len(hints) > 0 {
		fmt.Println("Suggestions:")
		for _, h := range hints {
			fmt.Printf("  - %s\n", h)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
