package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// stubClient returns a canned response and records the last request.
type stubClient struct {
	response   string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *stubClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt
	return s.response, s.err
}

func TestCleanCodeStripsPythonFence(t *testing.T) {
	raw := "Sure! Here is the script:\n```python\nimport bpy\nbpy.ops.mesh.primitive_cube_add()\n```\nLet me know if you need changes."

	got := CleanCode(raw)
	want := "import bpy\nbpy.ops.mesh.primitive_cube_add()"
	if got != want {
		t.Errorf("CleanCode = %q, want %q", got, want)
	}
}

func TestCleanCodeStripsBareFence(t *testing.T) {
	raw := "```\nimport bpy\nx = 1\n```"

	got := CleanCode(raw)
	want := "import bpy\nx = 1"
	if got != want {
		t.Errorf("CleanCode = %q, want %q", got, want)
	}
}

func TestCleanCodeRemovesMetaComments(t *testing.T) {
	raw := "```python\nimport bpy\n# The code here creates a cube\nbpy.ops.mesh.primitive_cube_add()\n# Set the size\nsize = 2\n```"

	got := CleanCode(raw)
	if strings.Contains(got, "code here") {
		t.Errorf("CleanCode = %q, meta comment survived", got)
	}
	if !strings.Contains(got, "# Set the size") {
		t.Errorf("CleanCode = %q, regular comment removed", got)
	}
}

func TestCleanCodePassthrough(t *testing.T) {
	raw := "import bpy\nbpy.ops.mesh.primitive_cube_add()"
	if got := CleanCode(raw); got != raw {
		t.Errorf("CleanCode = %q, want unchanged input", got)
	}
}

func TestTemplateStoreFallbackChain(t *testing.T) {
	dir := t.TempDir()
	base := "base instructions"
	if err := os.WriteFile(filepath.Join(dir, "base_system_prompt.txt"), []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewTemplateStore(dir, zap.NewNop())

	// Missing specialized template falls back to base.
	if got := store.Get("modeling"); got != base {
		t.Errorf("Get(modeling) = %q, want base template", got)
	}

	// Missing base falls back to the built-in default.
	empty := NewTemplateStore(t.TempDir(), zap.NewNop())
	if got := empty.Get("base"); got != defaultSystemPrompt {
		t.Errorf("Get(base) with no files = %q, want built-in default", got)
	}
}

func TestTemplateStoreReadsSpecializedTemplate(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "material_expert.txt"), []byte("material instructions"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewTemplateStore(dir, zap.NewNop())
	if got := store.Get("material"); got != "material instructions" {
		t.Errorf("Get(material) = %q", got)
	}

	// Cached after first read: a disk change without invalidation is not seen.
	if err := os.WriteFile(filepath.Join(dir, "material_expert.txt"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := store.Get("material"); got != "material instructions" {
		t.Errorf("Get(material) after disk change = %q, want cached value", got)
	}
}

func TestGeneratorUsesTemplateAndCleansResponse(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "scene_expert.txt"), []byte("scene instructions"), 0o644); err != nil {
		t.Fatal(err)
	}

	stub := &stubClient{response: "```python\nimport bpy\n```"}
	g := NewGenerator(stub, NewTemplateStore(dir, zap.NewNop()), zap.NewNop())

	code, err := g.Generate(context.Background(), "set up a studio", "scene")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "import bpy" {
		t.Errorf("code = %q, want %q", code, "import bpy")
	}
	if stub.lastSystem != "scene instructions" {
		t.Errorf("system prompt = %q, want scene template", stub.lastSystem)
	}
	if stub.lastUser != "set up a studio" {
		t.Errorf("user prompt = %q", stub.lastUser)
	}
}

func TestRefineEmbedsCodeAndFeedback(t *testing.T) {
	stub := &stubClient{response: "import bpy"}
	g := NewGenerator(stub, NewTemplateStore(t.TempDir(), zap.NewNop()), zap.NewNop())

	_, err := g.Refine(context.Background(), "import bpy\nx = 1", "make the cube red", "base")
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if !strings.Contains(stub.lastUser, "x = 1") {
		t.Errorf("refinement prompt %q missing original code", stub.lastUser)
	}
	if !strings.Contains(stub.lastUser, "User feedback: make the cube red") {
		t.Errorf("refinement prompt %q missing feedback", stub.lastUser)
	}
}

func TestGenerateWithContext(t *testing.T) {
	stub := &stubClient{response: "import bpy"}
	g := NewGenerator(stub, NewTemplateStore(t.TempDir(), zap.NewNop()), zap.NewNop())

	sc := SceneContext{
		PreviousCode: "bpy.ops.mesh.primitive_cube_add()",
		Objects:      []string{"Cube", "Camera"},
	}
	_, err := g.GenerateWithContext(context.Background(), "add a sphere", sc, "base")
	if err != nil {
		t.Fatalf("GenerateWithContext: %v", err)
	}
	if !strings.Contains(stub.lastUser, "primitive_cube_add") {
		t.Errorf("prompt %q missing previous code", stub.lastUser)
	}
	if !strings.Contains(stub.lastUser, "Existing objects: Cube, Camera") {
		t.Errorf("prompt %q missing object list", stub.lastUser)
	}
	if !strings.Contains(stub.lastUser, "New request: add a sphere") {
		t.Errorf("prompt %q missing new request", stub.lastUser)
	}
}

func TestGenerateWithContextNoPreviousCode(t *testing.T) {
	stub := &stubClient{response: "import bpy"}
	g := NewGenerator(stub, NewTemplateStore(t.TempDir(), zap.NewNop()), zap.NewNop())

	_, err := g.GenerateWithContext(context.Background(), "add a sphere", SceneContext{}, "base")
	if err != nil {
		t.Fatalf("GenerateWithContext: %v", err)
	}
	if stub.lastUser != "add a sphere" {
		t.Errorf("prompt = %q, want the bare request", stub.lastUser)
	}
}
