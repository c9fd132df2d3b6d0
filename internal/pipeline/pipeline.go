// Package pipeline orchestrates one request end to end: prompt analysis,
// code generation with validation retries, script persistence, and Blender
// execution.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blendforge/internal/blender"
	"blendforge/internal/config"
	"blendforge/internal/generate"
	"blendforge/internal/prompt"
	"blendforge/internal/validate"
)

// Executor runs a persisted script through Blender. *blender.Executor
// satisfies it; tests substitute a stub.
type Executor interface {
	RunPipeline(ctx context.Context, scriptPath, mode string, render, export, save bool) (*blender.PipelineResult, error)
}

// Options selects what one run does. The cmd layer resolves config
// defaults before constructing it.
type Options struct {
	Mode       string
	Render     bool
	Export     bool
	Save       bool
	Validate   bool
	MaxRetries int
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	RequestID  string
	Success    bool
	Processed  *prompt.Processed
	Report     *validate.Report
	Code       string
	ScriptPath string
	RenderPath string
	ExportPath string
	BlendPath  string
	Stdout     string
	Stderr     string
	FailedPath string
	Attempts   int
}

// Runner wires the stages together.
type Runner struct {
	cfg       *config.Config
	processor *prompt.Processor
	generator *generate.Generator
	validator *validate.Validator
	executor  Executor
	logger    *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg *config.Config, generator *generate.Generator, executor Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		processor: prompt.New(logger),
		generator: generator,
		validator: validate.New(logger),
		executor:  executor,
		logger:    logger,
	}
}

// Run processes one request. Generation and validation retry up to
// Options.MaxRetries; execution runs once on the accepted script.
func (r *Runner) Run(ctx context.Context, text string, opts Options) (*Outcome, error) {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = r.cfg.Pipeline.MaxRetries
	}

	outcome := &Outcome{RequestID: uuid.NewString()}
	logger := r.logger.With(zap.String("request_id", outcome.RequestID))

	logger.Info("processing request", zap.String("prompt", text))
	outcome.Processed = r.processor.Process(text)

	code, report, attempts, err := r.generateValid(ctx, outcome.Processed, opts, logger)
	outcome.Attempts = attempts
	if err != nil {
		return outcome, err
	}
	outcome.Code = code
	outcome.Report = report

	scriptPath, err := r.saveScript(code)
	if err != nil {
		return outcome, err
	}
	outcome.ScriptPath = scriptPath
	logger.Info("saved generated script", zap.String("path", scriptPath))

	result, err := r.executor.RunPipeline(ctx, scriptPath, opts.Mode, opts.Render, opts.Export, opts.Save)
	if err != nil {
		return outcome, fmt.Errorf("execution error: %w", err)
	}

	outcome.Success = result.Success
	outcome.Stdout = result.Stdout
	outcome.Stderr = result.Stderr
	outcome.RenderPath = result.RenderPath
	outcome.ExportPath = result.ExportPath
	outcome.BlendPath = result.BlendPath

	if result.Success {
		if r.cfg.Pipeline.ArchiveGenerations {
			r.archive(scriptPath, logger)
		}
	} else if r.cfg.Pipeline.SaveFailedCode {
		outcome.FailedPath = r.saveFailed(code, logger)
	}

	return outcome, nil
}

// generateValid regenerates until the validator accepts the code or the
// retry budget runs out. With validation off the first generation wins.
func (r *Runner) generateValid(ctx context.Context, processed *prompt.Processed, opts Options, logger *zap.Logger) (string, *validate.Report, int, error) {
	var lastErr error
	var lastReport *validate.Report

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 1 {
			logger.Info("retrying generation",
				zap.Int("attempt", attempt), zap.Int("max", opts.MaxRetries))
		}

		code, err := r.generator.Generate(ctx, processed.Enhanced, processed.PromptType)
		if err != nil {
			lastErr = err
			logger.Error("generation failed", zap.Error(err))
			continue
		}

		if !opts.Validate {
			return code, nil, attempt, nil
		}

		report, err := r.validator.Validate(ctx, code)
		if err != nil {
			return "", nil, attempt, fmt.Errorf("validation error: %w", err)
		}
		lastReport = report

		if report.IsValid {
			logger.Info("code validation passed", zap.Int("warnings", len(report.Warnings)))
			return code, report, attempt, nil
		}

		logger.Warn("code validation failed",
			zap.Strings("errors", report.Errors), zap.Int("attempt", attempt))
	}

	if lastErr != nil {
		return "", lastReport, opts.MaxRetries,
			fmt.Errorf("failed to generate code after %d attempts: %w", opts.MaxRetries, lastErr)
	}
	return "", lastReport, opts.MaxRetries,
		fmt.Errorf("failed to generate valid code after %d attempts", opts.MaxRetries)
}

func (r *Runner) saveScript(code string) (string, error) {
	path := filepath.Join(r.cfg.GeneratedDir(), fmt.Sprintf("generated_%s.py", timestamp()))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("saving generated script: %w", err)
	}
	return path, nil
}

func (r *Runner) saveFailed(code string, logger *zap.Logger) string {
	path := filepath.Join(r.cfg.GeneratedDir(), fmt.Sprintf("failed_%s.py", timestamp()))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		logger.Warn("failed to save failing script", zap.Error(err))
		return ""
	}
	logger.Info("saved failing script", zap.String("path", path))
	return path
}

// archive copies a successful generation into the archive directory.
// Archive failures are logged, never fatal.
func (r *Runner) archive(scriptPath string, logger *zap.Logger) {
	src, err := os.Open(scriptPath)
	if err != nil {
		logger.Warn("failed to archive generation", zap.Error(err))
		return
	}
	defer src.Close()

	dstPath := filepath.Join(r.cfg.ArchiveDir(), filepath.Base(scriptPath))
	dst, err := os.Create(dstPath)
	if err != nil {
		logger.Warn("failed to archive generation", zap.Error(err))
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		logger.Warn("failed to archive generation", zap.Error(err))
		return
	}
	logger.Debug("archived generation", zap.String("path", dstPath))
}

func timestamp() string {
	return time.Now().Format("20060102_150405")
}
