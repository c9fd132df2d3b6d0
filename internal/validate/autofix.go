package validate

import "strings"

const clearSceneSnippet = "# Clear existing objects\n" +
	"bpy.ops.object.select_all(action='SELECT')\n" +
	"bpy.ops.object.delete()\n\n"

// AutoFix applies mechanical repairs for the most common omissions in
// generated scripts: a missing bpy import and a missing scene clear.
// Applying it twice yields the same output as applying it once, because
// each probe finds the text its own fix inserts.
func AutoFix(code string) string {
	fixed := code

	if !strings.Contains(fixed, "import bpy") && !strings.Contains(fixed, "from bpy") {
		fixed = "import bpy\n" + fixed
	}

	if !strings.Contains(fixed, "bpy.ops.object.select_all") {
		fixed = insertAfterImports(fixed, clearSceneSnippet)
	}

	return fixed
}

// insertAfterImports places the snippet on the line after the last
// top-level import statement, or at the top when there are none.
func insertAfterImports(code, snippet string) string {
	lines := strings.Split(code, "\n")

	last := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "from ") {
			last = i
		}
	}

	if last < 0 {
		return snippet + code
	}

	var b strings.Builder
	for i, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
		if i == last {
			b.WriteString(snippet)
		}
	}
	out := b.String()
	// Split/join added a trailing newline the input may not have had.
	if !strings.HasSuffix(code, "\n") {
		out = strings.TrimSuffix(out, "\n")
	}
	return out
}
