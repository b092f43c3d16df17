package preview

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"regexp"

	"showcase/artifact"
	"showcase/project"
)

//go:embed assets
var assets embed.FS

// BabelURL is the in-browser TSX transpiler loaded by the sandbox.
const BabelURL = "https://unpkg.com/@babel/standalone@7.26.2/babel.min.js"

// AssetsPrefix is where runtime.js and host.js are served from.
const AssetsPrefix = "/preview-assets/"

const shellModule = "/public/index.html"

// FilesPayload is the payload of a files envelope and the boot data of a sandbox.
type FilesPayload struct {
	Version      int               `json:"version"`
	Entry        string            `json:"entry"`
	Root         string            `json:"root"`
	Files        *artifact.FileSet `json:"files"`
	Dependencies map[string]string `json:"dependencies"`
	ImportMap    ImportMap         `json:"importMap"`
	Placeholder  bool              `json:"placeholder,omitempty"`
}

// NewFilesPayload describes the project of e for the sandbox runtime.
func NewFilesPayload(e Entry) FilesPayload {
	p := e.Project
	return FilesPayload{
		Version:      e.Version,
		Entry:        p.Entry,
		Root:         project.IndexModule,
		Files:        p.Files,
		Dependencies: p.Dependencies,
		ImportMap:    BuildImportMap(p.Dependencies),
		Placeholder:  p.Placeholder,
	}
}

type sandboxBoot struct {
	FilesPayload
	ID         string `json:"id"`
	Theme      string `json:"theme"`
	Standalone bool   `json:"standalone"`
	Socket     string `json:"socket,omitempty"`
}

const fallbackShell = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Preview</title>
  <script src="https://cdn.tailwindcss.com"></script>
</head>
<body>
  <div id="root"></div>
</body>
</html>
`

var (
	headCloseRe = regexp.MustCompile(`(?i)</head\s*>`)
	bodyCloseRe = regexp.MustCompile(`(?i)</body\s*>`)
)

// SandboxDocument renders the document executed inside the sandbox. It starts from the
// project's HTML shell and adds the boot data, the transpiler and the module runtime.
// Standalone documents (fullscreen) open their own websocket instead of listening to a
// host frame.
func SandboxDocument(e Entry, standalone bool) ([]byte, error) {
	boot := sandboxBoot{
		FilesPayload: NewFilesPayload(e),
		ID:           e.ID,
		Theme:        e.Theme,
		Standalone:   standalone,
	}
	if standalone {
		boot.Socket = "/preview/" + e.ID + "/ws"
	}
	data, err := json.Marshal(boot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sandbox boot data: %w", err)
	}

	shell, ok := e.Project.Files.Get(shellModule)
	if !ok {
		shell = fallbackShell
	}

	head := fmt.Sprintf("<script>window.__PREVIEW_BOOT__ = %s;</script>\n<script src=%q></script>\n", data, BabelURL)
	body := fmt.Sprintf("<div id=\"preview-error\" hidden></div>\n<script src=%q></script>\n", AssetsPrefix+"runtime.js")

	doc := injectBefore(shell, headCloseRe, head, true)
	doc = injectBefore(doc, bodyCloseRe, body, false)
	return []byte(doc), nil
}

// injectBefore inserts snippet before the first match of re, or at the start (or end)
// of doc when the tag is missing.
func injectBefore(doc string, re *regexp.Regexp, snippet string, atStart bool) string {
	loc := re.FindStringIndex(doc)
	switch {
	case loc != nil:
		return doc[:loc[0]] + snippet + doc[loc[0]:]
	case atStart:
		return snippet + doc
	default:
		return doc + snippet
	}
}

var hostTemplate = template.Must(template.ParseFS(assets, "assets/host.html"))

type hostData struct {
	ID         string
	Title      string
	Theme      string
	Sandbox    string
	Fullscreen string
	Script     string
}

// HostDocument renders the page that frames the sandbox.
func HostDocument(e Entry) ([]byte, error) {
	title := "Preview"
	if e.Project.ComponentName != "" {
		title = e.Project.ComponentName + " preview"
	}
	var buf bytes.Buffer
	err := hostTemplate.Execute(&buf, hostData{
		ID:         e.ID,
		Title:      title,
		Theme:      e.Theme,
		Sandbox:    "/preview/" + e.ID + "/sandbox",
		Fullscreen: "/preview/" + e.ID + "/fullscreen",
		Script:     AssetsPrefix + "host.js",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render host page: %w", err)
	}
	return buf.Bytes(), nil
}
