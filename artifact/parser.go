/*
Package artifact extracts structured output from the accumulated text of a generation turn.

The model answers in a small tag language:

	<think>...</think>                       reasoning, never shown as chat text
	<component>...</component>               single-file form
	<files entry="/App.tsx">                 multi-file form
	  <file path="/App.tsx">...</file>
	</files>

Parse is a pure function of the text seen so far and is re-run from scratch on every update.
Regions that are still open at the end of the text are tolerated, so a half-streamed
<files> block already yields the files completed so far and never leaks into DisplayContent.
*/
package artifact

import (
	"regexp"
	"strings"
)

// Artifact is the parsed view of one turn's accumulated text.
type Artifact struct {
	Reasoning      string   `json:"reasoning,omitempty"`
	DisplayContent string   `json:"displayContent"`
	Code           string   `json:"code,omitempty"`
	HasCode        bool     `json:"hasCode"`
	Files          *FileSet `json:"files,omitempty"`
	EntryFile      string   `json:"entryFile,omitempty"`

	// Truncated is only set by ParseFinal.
	Truncated bool `json:"truncated,omitempty"`
}

// HasArtifact reports whether the text produced anything renderable.
func (a Artifact) HasArtifact() bool {
	return a.HasCode || a.Files.Len() > 0
}

var (
	thinkRe         = regexp.MustCompile(`(?is)<think>(.*?)</think>`)
	openThinkRe     = regexp.MustCompile(`(?is)<think>.*$`)
	componentRe     = regexp.MustCompile(`(?is)<component>(.*?)</component>`)
	openComponentRe = regexp.MustCompile(`(?is)<component>.*$`)
	filesOpenRe     = regexp.MustCompile(`(?i)<files\b[^>]*>`)
	filesCloseRe    = regexp.MustCompile(`(?i)</files\s*>`)
	entryAttrRe     = regexp.MustCompile(`(?i)\bentry\s*=\s*["']([^"']*)["']`)
	fileOpenRe      = regexp.MustCompile(`(?i)<file\s+path\s*=\s*["']([^"']+)["'][^>]*>`)
	fileCloseRe     = regexp.MustCompile(`(?i)</file\s*>`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
)

// tag names whose partial openers are hidden while they stream in
var knownTags = []string{"think", "component", "files", "file"}

// Parse extracts reasoning, display text, code and files from text.
func Parse(text string) Artifact {
	var a Artifact

	var thoughts []string
	for _, m := range thinkRe.FindAllStringSubmatch(text, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			thoughts = append(thoughts, t)
		}
	}
	a.Reasoning = strings.Join(thoughts, "\n\n")

	if m := componentRe.FindStringSubmatch(text); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			a.Code = code
			a.HasCode = true
		}
	}

	if span, ok := findFilesSpan(text); ok {
		a.Files = parseFiles(text[span.bodyStart:span.bodyEnd], !span.closed)
		if entry := entryAttrRe.FindStringSubmatch(span.opener); entry != nil && strings.TrimSpace(entry[1]) != "" {
			a.EntryFile = NormalizePath(entry[1])
		}
		if a.Files == nil {
			a.EntryFile = ""
		} else if a.EntryFile == "" {
			a.EntryFile = defaultEntry(a.Files)
		}
	}

	a.DisplayContent = displayText(text)
	return a
}

// ParseFinal parses the text of a finished stream. Unlike Parse it flags a
// <files> or <component> region that was opened but never closed.
func ParseFinal(text string) Artifact {
	a := Parse(text)
	if span, ok := findFilesSpan(text); ok && !span.closed {
		a.Truncated = true
	}
	if !componentRe.MatchString(text) && openComponentRe.MatchString(text) {
		a.Truncated = true
	}
	return a
}

// ResolveEntry picks the file to render: the declared entry when it exists in
// files, then /entry.tsx, then /App.tsx, then the first inserted path.
func ResolveEntry(files *FileSet, declared string) string {
	if files.Len() == 0 {
		return ""
	}
	if declared != "" && files.Has(declared) {
		return NormalizePath(declared)
	}
	if entry := defaultEntry(files); entry != "" {
		return entry
	}
	return files.First()
}

func defaultEntry(files *FileSet) string {
	for _, candidate := range []string{"/entry.tsx", "/App.tsx"} {
		if files.Has(candidate) {
			return candidate
		}
	}
	return ""
}

type filesSpan struct {
	start, end         int
	bodyStart, bodyEnd int
	opener             string
	closed             bool
}

func findFilesSpan(text string) (filesSpan, bool) {
	loc := filesOpenRe.FindStringIndex(text)
	if loc == nil {
		return filesSpan{}, false
	}
	span := filesSpan{
		start:     loc[0],
		bodyStart: loc[1],
		bodyEnd:   len(text),
		end:       len(text),
		opener:    text[loc[0]:loc[1]],
	}
	if c := filesCloseRe.FindStringIndex(text[loc[1]:]); c != nil {
		span.bodyEnd = loc[1] + c[0]
		span.end = loc[1] + c[1]
		span.closed = true
	}
	return span, true
}

// parseFiles reads <file path> children from the body of a files span.
// It returns nil when no child has a non-empty body.
func parseFiles(body string, open bool) *FileSet {
	matches := fileOpenRe.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}
	files := NewFileSet()
	for i, m := range matches {
		contentStart := m[1]
		contentEnd := len(body)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}
		content := body[contentStart:contentEnd]
		closed := false
		if c := fileCloseRe.FindStringIndex(content); c != nil {
			content = content[:c[0]]
			closed = true
		}
		if !closed && open && i == len(matches)-1 {
			content = trimPartialTag(content)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		files.Set(body[m[2]:m[3]], content)
	}
	if files.Len() == 0 {
		return nil
	}
	return files
}

func displayText(text string) string {
	out := thinkRe.ReplaceAllString(text, "")
	out = openThinkRe.ReplaceAllString(out, "")
	out = componentRe.ReplaceAllString(out, "")
	out = openComponentRe.ReplaceAllString(out, "")
	if span, ok := findFilesSpan(out); ok {
		out = out[:span.start] + out[span.end:]
	}
	out = trimPartialTag(out)
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// trimPartialTag drops a trailing fragment such as `<fil` or `</file` that is
// the beginning of one of the tags of the output format.
func trimPartialTag(s string) string {
	idx := strings.LastIndexByte(s, '<')
	if idx < 0 {
		return s
	}
	rest := s[idx+1:]
	if strings.ContainsRune(rest, '>') {
		return s
	}
	name := strings.TrimPrefix(rest, "/")
	if i := strings.IndexAny(name, " \t\r\n"); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	for _, tag := range knownTags {
		if name != "" && strings.HasPrefix(tag, name) {
			return s[:idx]
		}
	}
	if rest == "" || rest == "/" {
		return s[:idx]
	}
	return s
}
