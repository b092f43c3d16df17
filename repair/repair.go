// Package repair heals model-written source files so the preview runtime can execute them.
//
// Every pass is a best-effort text transformation: it never fails and returns its input
// unchanged when there is nothing to fix. Running Source twice yields the same output as
// running it once.
package repair

import (
	"regexp"
	"strings"
)

// attribute names whose string values are collapsed onto one line
var stringAttributes = []string{
	"className", "class", "title", "placeholder", "href", "src", "alt", "value",
	"label", "aria-label", "id", "name", "type", "content", "style",
}

// ForbiddenPackages are not provided by the sandbox; their imports are removed.
var ForbiddenPackages = []string{"lucide-react", "framer-motion"}

var (
	multilineAttrRe = regexp.MustCompile(`\b(` + alternation(stringAttributes) + `)="([^"<>{}]*)"`)
	lineBreakRe     = regexp.MustCompile(`[ \t]*\r?\n\s*`)
	danglingCloseRe = regexp.MustCompile(`(?m)(</[A-Za-z][\w.]*)[ \t]*(\r?)$`)
	forbiddenStmtRe = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:[^;'"]*?\bfrom\s*)?["'](` + alternation(ForbiddenPackages) + `)(?:/[^"']*)?["'][ \t]*;?[ \t]*$`)
)

// Source runs every pass over the file at path, in order: attribute and tag repair,
// missing import injection, alias rewriting, forbidden import stripping.
func Source(path, src string) string {
	out := RepairMultilineAttributes(src)
	out = RepairDanglingClosingTags(out)
	out = InjectMissingImports(out)
	out = RewriteAliasImports(path, out)
	out = StripForbiddenImports(out)
	return out
}

// RepairMultilineAttributes joins string attribute values that were broken across lines,
// so `className="a\n    b"` becomes `className="a b"`.
func RepairMultilineAttributes(src string) string {
	return multilineAttrRe.ReplaceAllStringFunc(src, func(attr string) string {
		m := multilineAttrRe.FindStringSubmatch(attr)
		if !strings.ContainsRune(m[2], '\n') {
			return attr
		}
		value := strings.TrimSpace(lineBreakRe.ReplaceAllString(m[2], " "))
		return m[1] + `="` + value + `"`
	})
}

// RepairDanglingClosingTags completes a closing tag cut off before its `>`
// at the end of a line or of the input. A tag whose `>` follows on a later
// line is valid JSX and stays as written.
func RepairDanglingClosingTags(src string) string {
	matches := danglingCloseRe.FindAllStringSubmatchIndex(src, -1)
	if matches == nil {
		return src
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		if strings.HasPrefix(strings.TrimLeft(src[m[1]:], " \t\r\n"), ">") {
			continue
		}
		b.WriteString(src[last:m[0]])
		b.WriteString(src[m[2]:m[3]])
		b.WriteByte('>')
		b.WriteString(src[m[4]:m[5]])
		last = m[1]
	}
	b.WriteString(src[last:])
	return b.String()
}

// StripForbiddenImports replaces each import statement from a forbidden package
// with a comment line.
func StripForbiddenImports(src string) string {
	return forbiddenStmtRe.ReplaceAllStringFunc(src, func(stmt string) string {
		m := forbiddenStmtRe.FindStringSubmatch(stmt)
		return "// removed unsupported import: " + m[1]
	})
}

func alternation(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}
