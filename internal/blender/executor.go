// Package blender runs generated Python scripts in a Blender subprocess
// and composes the render/export/save stages onto them.
package blender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of one Blender invocation.
type Result struct {
	Success bool
	Stdout  string
	Stderr  string
}

// PipelineResult extends Result with the artifact paths the combined
// script was asked to produce. A path is empty when that stage was off.
type PipelineResult struct {
	Result
	ScriptPath string
	RenderPath string
	ExportPath string
	BlendPath  string
}

// RenderSettings configures the render stage appended to a script.
type RenderSettings struct {
	Width   int
	Height  int
	Samples int
	Engine  string
}

// Options configures an Executor.
type Options struct {
	Path         string
	DefaultMode  string
	Timeout      time.Duration
	GeneratedDir string
	RendersDir   string
	ModelsDir    string
	BlendDir     string
	ExportFormat string
	Render       RenderSettings
}

// Executor runs scripts through a verified Blender binary.
type Executor struct {
	logger *zap.Logger
	opts   Options
}

// exportOps maps an export format to the Blender operator invoking it.
var exportOps = map[string]string{
	"obj":  "bpy.ops.wm.obj_export",
	"fbx":  "bpy.ops.export_scene.fbx",
	"gltf": "bpy.ops.export_scene.gltf",
	"stl":  "bpy.ops.export_mesh.stl",
	"ply":  "bpy.ops.export_mesh.ply",
}

// NewExecutor verifies the Blender binary and returns an Executor.
func NewExecutor(opts Options, logger *zap.Logger) (*Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Path == "" {
		opts.Path = "blender"
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = "background"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 300 * time.Second
	}

	e := &Executor{logger: logger, opts: opts}

	version, err := e.verify()
	if err != nil {
		return nil, fmt.Errorf("blender not found or not executable at %q: %w", opts.Path, err)
	}
	logger.Info("found blender", zap.String("version", version), zap.String("path", opts.Path))

	return e, nil
}

// verify runs blender --version and returns the first output line.
func (e *Executor) verify() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.opts.Path, "--version").Output()
	if err != nil {
		return "", err
	}
	lines := strings.SplitN(string(out), "\n", 2)
	return strings.TrimSpace(lines[0]), nil
}

// Run executes a script in Blender. mode is "background" or "gui"; an
// empty mode uses the configured default. A timeout produces a failed
// Result rather than an error; errors are reserved for setup problems.
func (e *Executor) Run(ctx context.Context, scriptPath, mode string) (*Result, error) {
	if mode == "" {
		mode = e.opts.DefaultMode
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("script not found: %s", scriptPath)
	}

	args := make([]string, 0, 3)
	if mode == "background" {
		args = append(args, "--background")
	}
	args = append(args, "--python", scriptPath)

	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.opts.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Info("executing script",
		zap.String("script", filepath.Base(scriptPath)),
		zap.String("mode", mode))

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.logger.Error("script execution timed out", zap.Duration("timeout", e.opts.Timeout))
		return &Result{Success: false, Stderr: "Execution timed out"}, nil
	}

	result := &Result{
		Success: err == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err == nil {
		e.logger.Info("script executed successfully")
	} else {
		e.logger.Error("script execution failed", zap.Error(err))
	}

	return result, nil
}

// RunWithRender executes the script with a render stage appended.
// outputPath may be empty; a timestamped path under the renders directory
// is used then.
func (e *Executor) RunWithRender(ctx context.Context, scriptPath, outputPath, mode string) (*Result, string, error) {
	if outputPath == "" {
		outputPath = filepath.Join(e.opts.RendersDir, fmt.Sprintf("render_%s.png", timestamp()))
	}

	combined, err := e.composeScript(scriptPath, "temp_render", renderStage(outputPath, e.opts.Render))
	if err != nil {
		return nil, "", err
	}

	e.logger.Info("executing with render", zap.String("output", outputPath))
	result, err := e.Run(ctx, combined, mode)
	return result, outputPath, err
}

// RunWithExport executes the script with a model export stage appended.
func (e *Executor) RunWithExport(ctx context.Context, scriptPath, exportPath, format, mode string) (*Result, string, error) {
	if format == "" {
		format = e.opts.ExportFormat
	}
	if exportPath == "" {
		exportPath = filepath.Join(e.opts.ModelsDir, fmt.Sprintf("model_%s.%s", timestamp(), format))
	}

	stage, err := exportStage(exportPath, format)
	if err != nil {
		return nil, "", err
	}
	combined, err := e.composeScript(scriptPath, "temp_export", stage)
	if err != nil {
		return nil, "", err
	}

	e.logger.Info("executing with export",
		zap.String("format", strings.ToUpper(format)),
		zap.String("output", exportPath))
	result, err := e.Run(ctx, combined, mode)
	return result, exportPath, err
}

// RunWithSave executes the script with a save-as-mainfile stage appended.
func (e *Executor) RunWithSave(ctx context.Context, scriptPath, blendPath, mode string) (*Result, string, error) {
	if blendPath == "" {
		blendPath = filepath.Join(e.opts.BlendDir, fmt.Sprintf("scene_%s.blend", timestamp()))
	}

	combined, err := e.composeScript(scriptPath, "temp_save", saveStage(blendPath))
	if err != nil {
		return nil, "", err
	}

	e.logger.Info("executing with save", zap.String("output", blendPath))
	result, err := e.Run(ctx, combined, mode)
	return result, blendPath, err
}

// RunPipeline executes the script with every enabled stage appended to a
// single combined script, so Blender is started once.
func (e *Executor) RunPipeline(ctx context.Context, scriptPath, mode string, render, export, save bool) (*PipelineResult, error) {
	ts := timestamp()
	pr := &PipelineResult{}

	var stages []string
	if render {
		pr.RenderPath = filepath.Join(e.opts.RendersDir, fmt.Sprintf("render_%s.png", ts))
		stages = append(stages, renderStage(pr.RenderPath, e.opts.Render))
	}
	if export {
		pr.ExportPath = filepath.Join(e.opts.ModelsDir, fmt.Sprintf("model_%s.%s", ts, e.opts.ExportFormat))
		stage, err := exportStage(pr.ExportPath, e.opts.ExportFormat)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	if save {
		pr.BlendPath = filepath.Join(e.opts.BlendDir, fmt.Sprintf("scene_%s.blend", ts))
		stages = append(stages, saveStage(pr.BlendPath))
	}

	code, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}

	combined := ComposePipelineScript(string(code), stages)
	combinedPath := filepath.Join(e.opts.GeneratedDir, fmt.Sprintf("combined_%s.py", ts))
	if err := os.WriteFile(combinedPath, []byte(combined), 0o644); err != nil {
		return nil, fmt.Errorf("writing combined script: %w", err)
	}
	pr.ScriptPath = combinedPath

	result, err := e.Run(ctx, combinedPath, mode)
	if err != nil {
		return nil, err
	}
	pr.Result = *result

	return pr, nil
}

// composeScript appends one stage to the script's code and writes the
// combined file next to the generated scripts.
func (e *Executor) composeScript(scriptPath, prefix, stage string) (string, error) {
	code, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	combined := string(code) + "\n\n" + stage
	combinedPath := filepath.Join(e.opts.GeneratedDir, fmt.Sprintf("%s_%s.py", prefix, stem))

	if err := os.WriteFile(combinedPath, []byte(combined), 0o644); err != nil {
		return "", fmt.Errorf("writing combined script: %w", err)
	}
	return combinedPath, nil
}

// ComposePipelineScript joins the original code with the stage snippets.
func ComposePipelineScript(code string, stages []string) string {
	var b strings.Builder
	b.WriteString(code)
	b.WriteString("\nimport bpy\n")
	for _, stage := range stages {
		b.WriteString("\n")
		b.WriteString(stage)
	}
	return b.String()
}

func renderStage(outputPath string, settings RenderSettings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Render\n")
	fmt.Fprintf(&b, "bpy.context.scene.render.filepath = %q\n", outputPath)
	fmt.Fprintf(&b, "bpy.context.scene.render.image_settings.file_format = 'PNG'\n")
	fmt.Fprintf(&b, "bpy.context.scene.render.resolution_x = %d\n", settings.Width)
	fmt.Fprintf(&b, "bpy.context.scene.render.resolution_y = %d\n", settings.Height)
	fmt.Fprintf(&b, "bpy.context.scene.render.engine = '%s'\n", settings.Engine)
	fmt.Fprintf(&b, "if bpy.context.scene.render.engine == 'CYCLES':\n")
	fmt.Fprintf(&b, "    bpy.context.scene.cycles.samples = %d\n", settings.Samples)
	fmt.Fprintf(&b, "bpy.ops.render.render(write_still=True)\n")
	fmt.Fprintf(&b, "print(\"Rendered to: %s\")\n", outputPath)
	return b.String()
}

func exportStage(exportPath, format string) (string, error) {
	op, ok := exportOps[strings.ToLower(format)]
	if !ok {
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Export\n")
	fmt.Fprintf(&b, "%s(filepath=%q)\n", op, exportPath)
	fmt.Fprintf(&b, "print(\"Exported to: %s\")\n", exportPath)
	return b.String(), nil
}

func saveStage(blendPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Save\n")
	fmt.Fprintf(&b, "bpy.ops.wm.save_as_mainfile(filepath=%q)\n", blendPath)
	fmt.Fprintf(&b, "print(\"Saved to: %s\")\n", blendPath)
	return b.String()
}

func timestamp() string {
	return time.Now().Format("20060102_150405")
}

// SupportedExportFormats lists the formats exportStage accepts, for
// config validation and CLI help.
func SupportedExportFormats() []string {
	return []string{"obj", "fbx", "gltf", "stl", "ply"}
}
