/*
Package tools provides the langchaingo tools of the project agent.

The tools read the virtual project behind a live preview. That project only exists
in memory, so every tool works on a Workspace snapshot taken when the agent request
starts: paths are root-relative ("/components/Card.tsx"), directories are implied by
the file paths, and nothing is ever written.
*/
package tools

import (
	"sort"
	"strings"

	"github.com/tmc/langchaingo/tools"

	"showcase/artifact"
	"showcase/project"
)

// Workspace is a read-only snapshot of a virtual project.
type Workspace struct {
	files         *artifact.FileSet
	entry         string
	dependencies  map[string]string
	componentName string
}

// NewWorkspace snapshots p.
func NewWorkspace(p *project.Project) *Workspace {
	ws := &Workspace{files: artifact.NewFileSet(), dependencies: map[string]string{}}
	if p == nil {
		return ws
	}
	ws.files = p.Files.Clone()
	ws.entry = p.Entry
	ws.componentName = p.ComponentName
	for name, version := range p.Dependencies {
		ws.dependencies[name] = version
	}
	return ws
}

// resolve normalizes an agent supplied path. Empty input, "." and "None" mean the root.
func (w *Workspace) resolve(input string) string {
	p := strings.Trim(strings.TrimSpace(input), `"'`)
	if p == "" || p == "." || strings.EqualFold(p, "none") {
		return "/"
	}
	return artifact.NormalizePath(p)
}

// file returns the source at p.
func (w *Workspace) file(p string) (string, bool) {
	return w.files.Get(p)
}

// isDir reports whether some file lives below dir.
func (w *Workspace) isDir(dir string) bool {
	if dir == "/" {
		return true
	}
	prefix := dir + "/"
	for _, p := range w.files.Paths() {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// list returns the direct children of dir: subdirectories (with a trailing
// slash) first, then files, each sorted.
func (w *Workspace) list(dir string) (dirs, files []string) {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]bool{}
	for _, p := range w.files.Paths() {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			name := rest[:i] + "/"
			if !seen[name] {
				seen[name] = true
				dirs = append(dirs, name)
			}
			continue
		}
		files = append(files, rest)
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files
}

// under returns every file path at or below target, in project order.
func (w *Workspace) under(target string) []string {
	if target == "/" {
		return w.files.Paths()
	}
	if w.files.Has(target) {
		return []string{target}
	}
	var out []string
	for _, p := range w.files.Paths() {
		if strings.HasPrefix(p, target+"/") {
			out = append(out, p)
		}
	}
	return out
}

// ProjectTools returns the agent tool set bound to ws.
func ProjectTools(ws *Workspace) []tools.Tool {
	return []tools.Tool{
		NewLsTool(ws),
		NewCatTool(ws),
		NewGrepTool(ws),
		NewStatTool(ws),
		NewDepsTool(ws),
		NewDateTimeTool(),
	}
}
