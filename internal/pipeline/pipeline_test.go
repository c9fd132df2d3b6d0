package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"blendforge/internal/blender"
	"blendforge/internal/config"
	"blendforge/internal/generate"
)

const validScript = "import bpy\n" +
	"bpy.ops.object.select_all(action='SELECT')\n" +
	"bpy.ops.object.delete()\n" +
	"bpy.ops.mesh.primitive_cube_add(size=2)\n" +
	"bpy.context.active_object.name = \"Cube\"\n"

const dangerousScript = "import bpy\nimport os\nos.system('ls')\n"

// sequenceClient replays canned responses in order, repeating the last one.
type sequenceClient struct {
	responses []string
	calls     int
}

func (s *sequenceClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *sequenceClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

// stubExecutor records the script it was given and returns a fixed result.
type stubExecutor struct {
	success    bool
	scriptPath string
	renderPath string
}

func (s *stubExecutor) RunPipeline(ctx context.Context, scriptPath, mode string, render, export, save bool) (*blender.PipelineResult, error) {
	s.scriptPath = scriptPath
	pr := &blender.PipelineResult{ScriptPath: scriptPath}
	pr.Success = s.success
	pr.Stdout = "blender output"
	if render {
		pr.RenderPath = s.renderPath
	}
	return pr, nil
}

func newTestRunner(t *testing.T, client generate.Client, exec Executor) (*Runner, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Paths.BaseDir = t.TempDir()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	gen := generate.NewGenerator(client, generate.NewTemplateStore(cfg.PromptsDir(), zap.NewNop()), zap.NewNop())
	return NewRunner(cfg, gen, exec, zap.NewNop()), cfg
}

func defaultOptions() Options {
	return Options{Mode: "background", Save: true, Validate: true, MaxRetries: 3}
}

func TestRunHappyPath(t *testing.T) {
	client := &sequenceClient{responses: []string{"```python\n" + validScript + "```"}}
	exec := &stubExecutor{success: true}
	runner, cfg := newTestRunner(t, client, exec)

	outcome, err := runner.Run(context.Background(), "create a red cube", defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !outcome.Success {
		t.Error("Success = false")
	}
	if outcome.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", outcome.Attempts)
	}
	if outcome.RequestID == "" {
		t.Error("RequestID is empty")
	}
	if outcome.Report == nil || !outcome.Report.IsValid {
		t.Errorf("Report = %+v, want valid", outcome.Report)
	}

	// Script persisted and handed to the executor.
	if exec.scriptPath != outcome.ScriptPath {
		t.Errorf("executor got %q, outcome has %q", exec.scriptPath, outcome.ScriptPath)
	}
	saved, err := os.ReadFile(outcome.ScriptPath)
	if err != nil {
		t.Fatalf("reading saved script: %v", err)
	}
	if !strings.Contains(string(saved), "primitive_cube_add") {
		t.Errorf("saved script = %q", saved)
	}

	// Successful runs are archived by default.
	archived := filepath.Join(cfg.ArchiveDir(), filepath.Base(outcome.ScriptPath))
	if _, err := os.Stat(archived); err != nil {
		t.Errorf("archive copy missing: %v", err)
	}
}

func TestRunRetriesOnInvalidCode(t *testing.T) {
	client := &sequenceClient{responses: []string{dangerousScript, validScript}}
	exec := &stubExecutor{success: true}
	runner, _ := newTestRunner(t, client, exec)

	outcome, err := runner.Run(context.Background(), "create a cube", defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", outcome.Attempts)
	}
	if !outcome.Success {
		t.Error("Success = false after retry")
	}
}

func TestRunFailsAfterMaxRetries(t *testing.T) {
	client := &sequenceClient{responses: []string{dangerousScript}}
	exec := &stubExecutor{success: true}
	runner, _ := newTestRunner(t, client, exec)

	opts := defaultOptions()
	opts.MaxRetries = 2

	outcome, err := runner.Run(context.Background(), "create a cube", opts)
	if err == nil {
		t.Fatal("Run succeeded with permanently invalid code")
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("err = %v, want attempt count", err)
	}
	if outcome.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", outcome.Attempts)
	}
	if client.calls != 2 {
		t.Errorf("client calls = %d, want 2", client.calls)
	}
	// Nothing was executed.
	if exec.scriptPath != "" {
		t.Errorf("executor ran %q, want no execution", exec.scriptPath)
	}
}

func TestRunSavesFailedCode(t *testing.T) {
	client := &sequenceClient{responses: []string{validScript}}
	exec := &stubExecutor{success: false}
	runner, cfg := newTestRunner(t, client, exec)

	outcome, err := runner.Run(context.Background(), "create a cube", defaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Success {
		t.Error("Success = true for a failed execution")
	}
	if outcome.FailedPath == "" {
		t.Fatal("FailedPath is empty")
	}
	if _, err := os.Stat(outcome.FailedPath); err != nil {
		t.Errorf("failed script missing: %v", err)
	}

	// Failed runs are not archived.
	entries, err := os.ReadDir(cfg.ArchiveDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("archive has %d entries, want none", len(entries))
	}
}

func TestRunSkipsValidationWhenDisabled(t *testing.T) {
	// Code the validator would reject still executes with validation off.
	client := &sequenceClient{responses: []string{dangerousScript}}
	exec := &stubExecutor{success: true}
	runner, _ := newTestRunner(t, client, exec)

	opts := defaultOptions()
	opts.Validate = false

	outcome, err := runner.Run(context.Background(), "create a cube", opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Success {
		t.Error("Success = false")
	}
	if outcome.Report != nil {
		t.Errorf("Report = %+v, want nil with validation off", outcome.Report)
	}
}

func TestRunPassesRenderPathThrough(t *testing.T) {
	client := &sequenceClient{responses: []string{validScript}}
	exec := &stubExecutor{success: true, renderPath: "/tmp/render_x.png"}
	runner, _ := newTestRunner(t, client, exec)

	opts := defaultOptions()
	opts.Render = true

	outcome, err := runner.Run(context.Background(), "create a cube", opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.RenderPath != "/tmp/render_x.png" {
		t.Errorf("RenderPath = %q", outcome.RenderPath)
	}
}
