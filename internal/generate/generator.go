package generate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Generator produces Blender Python scripts from prompts using an LLM
// provider and per-category system instructions.
type Generator struct {
	client    Client
	templates *TemplateStore
	logger    *zap.Logger
}

// SceneContext carries information about prior generations so a follow-up
// request can build on the existing scene.
type SceneContext struct {
	PreviousCode string
	Objects      []string
}

// NewGenerator creates a Generator.
func NewGenerator(client Client, templates *TemplateStore, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:    client,
		templates: templates,
		logger:    logger,
	}
}

// Generate produces a cleaned Python script for the prompt, using the
// system instruction matching promptType.
func (g *Generator) Generate(ctx context.Context, userPrompt, promptType string) (string, error) {
	systemPrompt := g.templates.Get(promptType)

	g.logger.Info("generating code",
		zap.String("prompt_type", promptType),
		zap.String("prompt", truncate(userPrompt, 50)))

	raw, err := g.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}

	return CleanCode(raw), nil
}

// Refine regenerates code with the user's feedback folded into the request.
func (g *Generator) Refine(ctx context.Context, originalCode, feedback, promptType string) (string, error) {
	refinementPrompt := fmt.Sprintf(`Here's the current Blender Python code:

`+"```python"+`
%s
`+"```"+`

User feedback: %s

Please provide the complete updated code with the requested changes.
Return ONLY the Python code, no explanations.`, originalCode, feedback)

	g.logger.Info("refining code", zap.String("feedback", truncate(feedback, 50)))

	return g.Generate(ctx, refinementPrompt, promptType)
}

// GenerateWithContext generates code that is aware of earlier output, so
// the script extends the scene instead of replacing it.
func (g *Generator) GenerateWithContext(ctx context.Context, userPrompt string, sc SceneContext, promptType string) (string, error) {
	enhanced := userPrompt

	if sc.PreviousCode != "" {
		enhanced = fmt.Sprintf(`Previous code in the scene:
`+"```python"+`
%s
`+"```"+`

New request: %s

Generate code that works with the existing scene.`, sc.PreviousCode, userPrompt)
	}

	if len(sc.Objects) > 0 {
		enhanced += fmt.Sprintf("\n\nExisting objects: %s", strings.Join(sc.Objects, ", "))
	}

	return g.Generate(ctx, enhanced, promptType)
}

// CleanCode strips markdown fencing and meta comments from a model
// response, leaving plain Python.
func CleanCode(raw string) string {
	code := strings.TrimSpace(raw)

	if strings.Contains(code, "```python") {
		parts := strings.SplitN(code, "```python", 2)
		code = strings.TrimSpace(strings.SplitN(parts[1], "```", 2)[0])
	} else if strings.Contains(code, "```") {
		parts := strings.Split(code, "```")
		if len(parts) >= 3 {
			code = strings.TrimSpace(parts[1])
		}
	}

	// Drop comment lines that narrate the code rather than document it.
	var cleaned []string
	for _, line := range strings.Split(code, "\n") {
		if isMetaComment(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n")
}

func isMetaComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, word := range []string{"here", "this", "above", "below"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
