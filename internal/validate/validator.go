// Package validate statically checks generated Blender Python before it is
// handed to a Blender subprocess. Validation runs in stages: a tree-sitter
// syntax parse, a security scan, an import check, and a Blender API usage
// check. A syntax failure short-circuits the remaining stages.
package validate

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"
)

// Report is the outcome of validating one script. Errors block execution;
// warnings and suggestions are advisory.
type Report struct {
	IsValid     bool
	Errors      []string
	Warnings    []string
	Suggestions []string
}

// Validator checks generated Python scripts. Safe for sequential reuse; the
// underlying parser is not goroutine-safe, so create one Validator per
// worker.
type Validator struct {
	logger *zap.Logger
	parser *sitter.Parser
}

// New creates a Validator with a Python grammar loaded.
func New(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Validator{logger: logger, parser: parser}
}

var dangerousPatterns = []string{
	"os.system", "subprocess", "eval", "exec", "__import__", "compile", "open",
}

var fileOpPatterns = []string{
	"open(", "write(", "read(", "remove(", "unlink(",
}

var networkModules = []string{
	"urllib", "requests", "socket", "http",
}

// Validate runs all stages against the script and aggregates the report.
func (v *Validator) Validate(ctx context.Context, code string) (*Report, error) {
	report := &Report{IsValid: true}

	if err := v.checkSyntax(ctx, code, report); err != nil {
		return nil, err
	}
	if !report.IsValid {
		v.logger.Warn("script rejected at syntax stage", zap.Strings("errors", report.Errors))
		return report, nil
	}

	v.checkSecurity(code, report)
	v.checkImports(code, report)
	v.checkBlenderAPI(code, report)
	v.collectSuggestions(code, report)

	if len(report.Errors) > 0 {
		report.IsValid = false
	}

	v.logger.Debug("validated script",
		zap.Bool("valid", report.IsValid),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)))

	return report, nil
}

// checkSyntax parses the script and reports the first ERROR or MISSING node.
// On failure the report carries exactly that one error and no warnings.
func (v *Validator) checkSyntax(ctx context.Context, code string, report *Report) error {
	tree, err := v.parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		return fmt.Errorf("parsing script: %w", err)
	}
	defer tree.Close()

	if bad := findParseError(tree.RootNode()); bad != nil {
		report.IsValid = false
		report.Errors = []string{fmt.Sprintf("syntax error at line %d: %s",
			bad.StartPoint().Row+1, describeParseError(bad))}
		report.Warnings = nil
	}
	return nil
}

// findParseError walks the tree depth-first and returns the first error or
// missing node, preferring the deepest one so the reported line is precise.
func findParseError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		if bad := findParseError(node.Child(i)); bad != nil {
			return bad
		}
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	return nil
}

func describeParseError(node *sitter.Node) string {
	if node.IsMissing() {
		return fmt.Sprintf("missing %s", node.Type())
	}
	return fmt.Sprintf("unexpected %s", node.Type())
}

// checkSecurity flags operations a generated script has no business doing.
// File-operation patterns are suppressed when every occurrence sits behind
// a comment marker on its line.
func (v *Validator) checkSecurity(code string, report *Report) {
	for _, pattern := range dangerousPatterns {
		if strings.Contains(code, pattern) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("Dangerous operation detected: %s", pattern))
		}
	}

	for _, pattern := range fileOpPatterns {
		if !strings.Contains(code, pattern) {
			continue
		}
		if fileOpCommentedEverywhere(code, pattern) {
			continue
		}
		report.Errors = append(report.Errors,
			fmt.Sprintf("File operation detected: %s", pattern))
	}

	for _, module := range networkModules {
		if strings.Contains(code, "import "+module) || strings.Contains(code, "from "+module) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("Network operation detected: %s", module))
		}
	}
}

// fileOpCommentedEverywhere reports whether every line containing the
// pattern has a comment marker before the pattern's first occurrence on
// that line. Only the first occurrence per line is considered.
func fileOpCommentedEverywhere(code, pattern string) bool {
	for _, line := range strings.Split(code, "\n") {
		idx := strings.Index(line, pattern)
		if idx < 0 {
			continue
		}
		hash := strings.Index(line, "#")
		if hash < 0 || idx < hash {
			return false
		}
	}
	return true
}

// checkImports warns about modules the script appears to need but never
// imports.
func (v *Validator) checkImports(code string, report *Report) {
	if !strings.Contains(code, "import bpy") && !strings.Contains(code, "from bpy") {
		report.Warnings = append(report.Warnings, "Missing recommended import: bpy")
	}

	lower := strings.ToLower(code)
	if strings.Contains(lower, "math") && !strings.Contains(code, "import math") {
		report.Warnings = append(report.Warnings, "Missing recommended import: math")
	}
	if strings.Contains(lower, "vector") && !strings.Contains(code, "from mathutils import") {
		report.Warnings = append(report.Warnings, "Missing recommended import: mathutils")
	}
}

// checkBlenderAPI warns about common Blender scripting mistakes: stale
// scene contents, anonymous objects, missing active-object management, and
// objects created but never linked into a collection.
func (v *Validator) checkBlenderAPI(code string, report *Report) {
	if !strings.Contains(code, "bpy.ops.object.select_all") &&
		!strings.Contains(code, "bpy.ops.object.delete") {
		report.Warnings = append(report.Warnings,
			"Script does not clear the existing scene; leftover objects may interfere")
	}

	createsMesh := strings.Contains(code, "bpy.ops.mesh") || strings.Contains(code, "bpy.ops.curve")
	if createsMesh && !strings.Contains(code, ".name =") && !strings.Contains(code, "name=") {
		report.Warnings = append(report.Warnings,
			"Created objects are not named; consider assigning names for later reference")
	}

	opsCount := strings.Count(code, "bpy.ops.")
	if opsCount > 0 &&
		!strings.Contains(code, "bpy.context.view_layer.objects.active") &&
		opsCount > 5 {
		report.Warnings = append(report.Warnings,
			"Many operators without managing the active object; results may target the wrong object")
	}

	if strings.Contains(code, "bpy.data.objects.new") &&
		!strings.Contains(code, "scene.collection.objects.link") &&
		!strings.Contains(code, "bpy.context.collection.objects.link") {
		report.Warnings = append(report.Warnings,
			"Objects created with bpy.data.objects.new are never linked to a collection")
	}
}

// collectSuggestions adds style advice that never affects validity.
func (v *Validator) collectSuggestions(code string, report *Report) {
	if !strings.Contains(code, "try:") {
		report.Suggestions = append(report.Suggestions,
			"Consider adding error handling with try/except blocks")
	}

	newlines := strings.Count(code, "\n")
	denom := newlines
	if denom < 1 {
		denom = 1
	}
	if float64(strings.Count(code, "#"))/float64(denom) < 0.1 {
		report.Suggestions = append(report.Suggestions,
			"Consider adding comments to explain the script")
	}

	if newlines > 50 && !strings.Contains(code, "def ") {
		report.Suggestions = append(report.Suggestions,
			"Consider organizing a long script into functions")
	}

	if strings.Count(code, "bpy.ops.") > 10 && !strings.Contains(code, "bpy.data.collections") {
		report.Suggestions = append(report.Suggestions,
			"Consider using collections to organize many objects")
	}
}
