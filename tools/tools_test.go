package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcase/artifact"
	"showcase/project"
)

func testWorkspace() *Workspace {
	files := artifact.NewFileSet()
	files.Set("/App.tsx", "import { PricingCard } from \"./components/PricingCard\"\n\nexport default function App() {\n  return <PricingCard />\n}\n")
	files.Set("/components/PricingCard.tsx", "import { z } from \"zod\"\nimport { Button } from \"@/components/ui/button\"\n\nexport function PricingCard() {\n  return <Button>Buy</Button>\n}\n")
	files.Set("/components/ui/button.tsx", "export function Button(props) {\n  return <button {...props} />\n}\n")
	files.Set("/lib/utils.ts", "export function cn(...inputs) {\n  return inputs.join(\" \")\n}\n")
	return &Workspace{
		files:         files,
		entry:         "/App.tsx",
		dependencies:  map[string]string{"react": "latest", "zod": "latest", "clsx": "latest"},
		componentName: "PricingCard",
	}
}

func call(t *testing.T, tool interface {
	Call(context.Context, string) (string, error)
}, input string) string {
	t.Helper()
	out, err := tool.Call(context.Background(), input)
	require.NoError(t, err)
	return out
}

func TestNewWorkspaceSnapshotsProject(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/App.tsx", "export default function App() { return null }")
	p := project.Assemble(project.Input{Files: files, EntryFile: "/App.tsx"})

	ws := NewWorkspace(p)
	p.Files.Set("/App.tsx", "changed")

	src, ok := ws.file("/App.tsx")
	require.True(t, ok)
	assert.Equal(t, "export default function App() { return null }", src)
	assert.Equal(t, p.Entry, ws.entry)

	empty := NewWorkspace(nil)
	assert.Equal(t, 0, empty.files.Len())
}

func TestWorkspaceResolve(t *testing.T) {
	ws := testWorkspace()
	tests := map[string]string{
		"":                       "/",
		".":                      "/",
		"None":                   "/",
		"'/components'":          "/components",
		"components/":            "/components",
		" \"/lib/utils.ts\"":     "/lib/utils.ts",
		"/components/../App.tsx": "/App.tsx",
	}
	for in, want := range tests {
		assert.Equal(t, want, ws.resolve(in), in)
	}
}

func TestLsTool(t *testing.T) {
	ls := NewLsTool(testWorkspace())

	tests := []struct {
		input string
		want  string
	}{
		{input: "", want: "/:\ncomponents/\nlib/\nApp.tsx  (entry)"},
		{input: "/components", want: "/components:\nui/\nPricingCard.tsx"},
		{input: "/lib/utils.ts", want: "/lib/utils.ts"},
		{input: "/nope", want: "ls: /nope: no such file or directory"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, ls, tt.input))
		})
	}
}

func TestCatTool(t *testing.T) {
	cat := NewCatTool(testWorkspace())

	assert.Contains(t, call(t, cat, "/lib/utils.ts"), "export function cn")
	assert.Equal(t, "Error: Please provide a file path", call(t, cat, "  "))
	assert.Equal(t, "cat: /components: is a directory", call(t, cat, "/components"))
	assert.Equal(t, "cat: /missing.tsx: no such file", call(t, cat, "missing.tsx"))
}

func TestCatToolTruncatesLongFiles(t *testing.T) {
	lines := make([]string, maxCatLines+25)
	for i := range lines {
		lines[i] = fmt.Sprintf("// line %d", i+1)
	}
	ws := testWorkspace()
	ws.files.Set("/long.ts", strings.Join(lines, "\n"))

	out := call(t, NewCatTool(ws), "/long.ts")
	assert.Contains(t, out, fmt.Sprintf("// line %d", maxCatLines))
	assert.NotContains(t, out, fmt.Sprintf("// line %d\n", maxCatLines+1))
	assert.True(t, strings.HasSuffix(out, "... (25 more lines)"))
}

func TestGrepTool(t *testing.T) {
	grep := NewGrepTool(testWorkspace())

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "regex across the project",
			input: `export (default )?function`,
			want: "/App.tsx:3:export default function App() {\n" +
				"/components/PricingCard.tsx:4:export function PricingCard() {\n" +
				"/components/ui/button.tsx:1:export function Button(props) {\n" +
				"/lib/utils.ts:1:export function cn(...inputs) {",
		},
		{
			name:  "limited to a directory",
			input: "Button /components/ui",
			want:  "/components/ui/button.tsx:1:export function Button(props) {",
		},
		{
			name:  "quoted pattern with spaces",
			input: `'from "zod"' /components`,
			want:  "/components/PricingCard.tsx:1:import { z } from \"zod\"",
		},
		{
			name:  "invalid regex searched literally",
			input: "cn(...",
			want:  "/lib/utils.ts:1:export function cn(...inputs) {",
		},
		{name: "no matches", input: "useEffect", want: `No matches for "useEffect" in /`},
		{name: "missing path", input: "x /nope", want: "grep: /nope: no such file or directory"},
		{name: "empty", input: "", want: "Error: Please provide a search pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, grep, tt.input))
		})
	}
}

func TestGrepToolCapsMatches(t *testing.T) {
	ws := testWorkspace()
	ws.files.Set("/many.ts", strings.Repeat("const x = 1\n", maxGrepMatches+7))

	out := call(t, NewGrepTool(ws), "const x /many.ts")
	assert.True(t, strings.HasSuffix(out, "... (7 more matches)"))
	assert.Equal(t, maxGrepMatches+1, len(strings.Split(out, "\n")))
}

func TestSplitGrepInput(t *testing.T) {
	tests := []struct {
		input, pattern, target string
	}{
		{input: "Button", pattern: "Button"},
		{input: "Button /components", pattern: "Button", target: "/components"},
		{input: "a b c", pattern: "a b c"},
		{input: `'a b' /lib`, pattern: "a b", target: "/lib"},
		{input: `"unterminated /lib`, pattern: `"unterminated`, target: "/lib"},
	}
	for _, tt := range tests {
		pattern, target := splitGrepInput(tt.input)
		assert.Equal(t, tt.pattern, pattern, tt.input)
		assert.Equal(t, tt.target, target, tt.input)
	}
}

func TestStatTool(t *testing.T) {
	stat := NewStatTool(testWorkspace())

	out := call(t, stat, "/App.tsx")
	assert.Contains(t, out, "Type: file")
	assert.Contains(t, out, "Lines: 5")
	assert.Contains(t, out, "Entry: true")

	out = call(t, stat, "/components")
	assert.Contains(t, out, "Type: directory")
	assert.Contains(t, out, "Files: 2")
	assert.NotContains(t, out, "Component:")

	out = call(t, stat, "")
	assert.Contains(t, out, "Files: 4")
	assert.Contains(t, out, "Component: PricingCard")

	assert.Equal(t, "stat: /nope: no such file or directory", call(t, stat, "/nope"))
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 0, lineCount(""))
	assert.Equal(t, 1, lineCount("one"))
	assert.Equal(t, 2, lineCount("one\ntwo\n"))
}

func TestDepsTool(t *testing.T) {
	tool := NewDepsTool(testWorkspace())

	assert.Equal(t, "clsx@latest (base)\nreact@latest (base)\nzod@latest (imported)", call(t, tool, ""))
	assert.Equal(t, "zod@latest (imported)", call(t, tool, "zod/v4"))
	assert.Equal(t, "framer-motion is not installed in this preview", call(t, tool, "framer-motion"))

	empty := NewDepsTool(NewWorkspace(nil))
	assert.Equal(t, "No dependencies", call(t, empty, ""))
}

func TestDateTimeTool(t *testing.T) {
	tool := NewDateTimeTool()
	fixed := time.Date(2025, 6, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	tool.now = func() time.Time { return fixed }

	assert.Equal(t, "Sun Jun 1 12:30:00 CEST 2025", call(t, tool, ""))
	assert.Equal(t, "Sun Jun 1 10:30:00 UTC 2025", call(t, tool, "UTC"))
}

func TestProjectTools(t *testing.T) {
	names := make([]string, 0)
	for _, tool := range ProjectTools(testWorkspace()) {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Description())
	}
	assert.Equal(t, []string{"ls", "cat", "grep", "stat", "deps", "datetime"}, names)
}
