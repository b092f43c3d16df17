/*
Package project assembles the virtual project the sandboxed preview executes.

Whatever shape the model output took, a single component string or a map of files, the
assembler produces a self-consistent tree: the model's files after source repair, the
UI primitive shims they may import, an /App.tsx module the bootstrap renders, and the
scaffold (bootstrap, stylesheet, HTML shell, tsconfig). When nothing can be rendered the
/App.tsx module shows a "No component found" placeholder instead of a blank screen.
*/
package project

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"showcase/artifact"
	"showcase/deps"
	"showcase/repair"
)

// Input is the part of a parsed artifact the assembler consumes.
type Input struct {
	Files     *artifact.FileSet
	EntryFile string
	Code      string
}

// FromArtifact builds the assembler input for a parsed artifact.
func FromArtifact(a artifact.Artifact) Input {
	return Input{Files: a.Files, EntryFile: a.EntryFile, Code: a.Code}
}

// Project is a complete virtual project ready for the preview runtime.
type Project struct {
	Files         *artifact.FileSet `json:"files"`
	Entry         string            `json:"entry"`
	Dependencies  map[string]string `json:"dependencies"`
	ComponentName string            `json:"componentName,omitempty"`
	Placeholder   bool              `json:"placeholder,omitempty"`
}

var (
	defaultExportRe = regexp.MustCompile(`\bexport\s+default\b|\bas\s+default\b`)
	localSpecRe     = regexp.MustCompile(`(\bfrom\s*|\bimport\s*\(?\s*|\brequire\s*\(\s*)(["'])((?:\.{1,2}/|@/)[^"'\n]*)(["'])`)
	scriptExtRe     = regexp.MustCompile(`\.(?:tsx|ts|jsx|js)$`)
)

// Assemble builds the project for in. It never fails.
func Assemble(in Input) *Project {
	p := &Project{Files: artifact.NewFileSet()}

	switch {
	case in.Files.Len() > 0:
		assembleFiles(p, in)
	case strings.TrimSpace(in.Code) != "":
		src, name, ok := wrapCode(in.Code)
		if !ok {
			p.Placeholder = true
			break
		}
		p.Files.Set(AppModule, src)
		p.Entry = AppModule
		p.ComponentName = name
	default:
		p.Placeholder = true
	}

	shims := Shims()
	for _, sp := range shims.Paths() {
		if !p.Files.Has(sp) {
			src, _ := shims.Get(sp)
			p.Files.Set(sp, src)
		}
	}
	for _, fp := range p.Files.Paths() {
		src, _ := p.Files.Get(fp)
		p.Files.Set(fp, repair.Source(fp, src))
	}

	switch {
	case p.Placeholder:
		p.Files.Set(AppModule, placeholderApp)
		p.Entry = AppModule
		p.ComponentName = ""
	case p.Entry != AppModule:
		p.Files.Set(AppModule, entryWrapper(repair.RelativeImport("/", stripScriptExt(p.Entry))))
	}

	addScaffold(p.Files)
	p.Dependencies = deps.ForFiles(p.Files)
	return p
}

func assembleFiles(p *Project, in Input) {
	for _, fp := range in.Files.Paths() {
		src, _ := in.Files.Get(fp)
		p.Files.Set(fp, src)
	}
	entry := artifact.ResolveEntry(p.Files, in.EntryFile)

	reserved := []string{IndexModule, RootModule}
	if src, _ := p.Files.Get(AppModule); entry != AppModule || !defaultExportRe.MatchString(src) {
		// /App.tsx will hold the wrapper
		reserved = append(reserved, AppModule)
	}
	for _, r := range reserved {
		if !p.Files.Has(r) {
			continue
		}
		renamed := freePath(p.Files, r)
		p.Files.Rename(r, renamed)
		retarget(p.Files, r, renamed)
		if entry == r {
			entry = renamed
		}
	}

	p.Entry = entry
	if src, ok := p.Files.Get(entry); ok {
		p.ComponentName, _ = DetectComponentName(src)
	}
}

// freePath returns the first unused name of the form /dir/GeneratedName.ext,
// /dir/GeneratedName2.ext, ...
func freePath(files *artifact.FileSet, p string) string {
	dir, base := path.Split(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem != "" {
		stem = strings.ToUpper(stem[:1]) + stem[1:]
	}
	candidate := dir + "Generated" + stem + ext
	for n := 2; files.Has(candidate) || isReserved(candidate); n++ {
		candidate = dir + "Generated" + stem + strconv.Itoa(n) + ext
	}
	return candidate
}

func isReserved(p string) bool {
	return p == AppModule || p == IndexModule || p == RootModule
}

// retarget points local imports of from at to in every file.
func retarget(files *artifact.FileSet, from, to string) {
	fromStem, toStem := stripScriptExt(from), stripScriptExt(to)
	for _, fp := range files.Paths() {
		src, _ := files.Get(fp)
		dir := path.Dir(fp)
		out := localSpecRe.ReplaceAllStringFunc(src, func(spec string) string {
			m := localSpecRe.FindStringSubmatch(spec)
			var resolved string
			if strings.HasPrefix(m[3], "@/") {
				resolved = "/" + strings.TrimPrefix(m[3], "@/")
			} else {
				resolved = path.Join(dir, m[3])
			}
			if stripScriptExt(resolved) != fromStem {
				return spec
			}
			target := repair.RelativeImport(dir, toStem)
			if strings.HasPrefix(m[3], "@/") {
				target = "@" + toStem
			}
			return m[1] + m[2] + target + m[4]
		})
		if out != src {
			files.Set(fp, out)
		}
	}
}

func stripScriptExt(p string) string {
	return scriptExtRe.ReplaceAllString(p, "")
}

func addScaffold(files *artifact.FileSet) {
	scaffold := Scaffold()
	for _, sp := range scaffold.Paths() {
		src, _ := scaffold.Get(sp)
		if sp == StylesModule {
			if own, ok := files.Get(sp); ok && strings.TrimSpace(own) != "" {
				src = src + "\n" + own
			}
		}
		files.Set(sp, src)
	}
}

// WithEdits returns a copy of p with user edits replacing whole files and the
// dependency map recomputed. Edited sources are kept exactly as typed.
func (p *Project) WithEdits(edits *artifact.FileSet) *Project {
	if edits.Len() == 0 {
		return p
	}
	out := *p
	out.Files = Overlay(p.Files, edits)
	out.Dependencies = deps.ForFiles(out.Files)
	return &out
}

// Overlay returns files with edits layered on top by path. Neither input is modified.
func Overlay(files, edits *artifact.FileSet) *artifact.FileSet {
	out := files.Clone()
	for _, ep := range edits.Paths() {
		src, _ := edits.Get(ep)
		out.Set(ep, src)
	}
	return out
}
