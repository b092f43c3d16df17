package repair

import (
	"path"
	"regexp"
	"strings"

	"showcase/artifact"
)

// knownIdentifier is a name the model routinely uses without importing it.
type knownIdentifier struct {
	name   string
	module string
	use    *regexp.Regexp
}

func tag(name, module string) knownIdentifier {
	return knownIdentifier{name: name, module: module, use: regexp.MustCompile(`<` + name + `[\s/>]`)}
}

func call(name, module string) knownIdentifier {
	return knownIdentifier{name: name, module: module, use: regexp.MustCompile(`(?:^|[^\w.$])` + name + `\s*\(`)}
}

// knownIdentifiers is ordered; injected imports follow this order.
var knownIdentifiers = []knownIdentifier{
	tag("Button", "@/components/ui/button"),
	tag("Card", "@/components/ui/card"),
	tag("CardHeader", "@/components/ui/card"),
	tag("CardTitle", "@/components/ui/card"),
	tag("CardDescription", "@/components/ui/card"),
	tag("CardContent", "@/components/ui/card"),
	tag("CardFooter", "@/components/ui/card"),
	tag("Badge", "@/components/ui/badge"),
	tag("Input", "@/components/ui/input"),
	tag("Textarea", "@/components/ui/textarea"),
	tag("Separator", "@/components/ui/separator"),
	tag("Link", "react-router-dom"),
	call("useNavigate", "react-router-dom"),
	call("useLocation", "react-router-dom"),
	call("useParams", "react-router-dom"),
	call("cn", "@/lib/utils"),
}

var (
	importClauseRe = regexp.MustCompile(`(?m)^[ \t]*import\s+([^;'"]+?)\s+from\s*["']`)
	directiveRe    = regexp.MustCompile(`^[ \t]*(?:"[^"\n]*"|'[^'\n]*')[ \t]*;?[ \t]*$`)
	aliasSpecRe    = regexp.MustCompile(`(\bfrom\s*|\bimport\s*\(?\s*|\brequire\s*\(\s*)(["'])@/([^"'\n]+)(["'])`)
	moduleExtRe    = regexp.MustCompile(`\.(?:tsx|ts|jsx|js)$`)
)

// boundIn reports whether src already binds name through an import or a declaration.
func boundIn(src, name string) bool {
	word := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	for _, m := range importClauseRe.FindAllStringSubmatch(src, -1) {
		if word.MatchString(m[1]) {
			return true
		}
	}
	decl := regexp.MustCompile(`(?m)\b(?:const|let|var|function|class)\s+` + regexp.QuoteMeta(name) + `\b`)
	return decl.MatchString(src)
}

// InjectMissingImports adds an import line for every known identifier that src uses
// but never binds. The new lines go right after a leading directive such as
// "use client", or at the very top.
func InjectMissingImports(src string) string {
	var modules []string
	missing := make(map[string][]string)
	for _, k := range knownIdentifiers {
		if !k.use.MatchString(src) || boundIn(src, k.name) {
			continue
		}
		if _, ok := missing[k.module]; !ok {
			modules = append(modules, k.module)
		}
		missing[k.module] = append(missing[k.module], k.name)
	}
	if len(modules) == 0 {
		return src
	}

	var block strings.Builder
	for _, mod := range modules {
		block.WriteString("import { " + strings.Join(missing[mod], ", ") + ` } from "` + mod + "\";\n")
	}
	return insertAfterDirective(src, block.String())
}

func insertAfterDirective(src, block string) string {
	lines := strings.SplitAfter(src, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !directiveRe.MatchString(strings.TrimRight(line, "\r\n")) {
			break
		}
		head := strings.Join(lines[:i+1], "")
		if !strings.HasSuffix(head, "\n") {
			head += "\n"
		}
		return head + block + strings.Join(lines[i+1:], "")
	}
	return block + src
}

// RewriteAliasImports turns `@/x` specifiers into paths relative to the directory
// of the file at filePath, dropping script extensions.
func RewriteAliasImports(filePath, src string) string {
	dir := path.Dir(artifact.NormalizePath(filePath))
	return aliasSpecRe.ReplaceAllStringFunc(src, func(spec string) string {
		m := aliasSpecRe.FindStringSubmatch(spec)
		target := moduleExtRe.ReplaceAllString("/"+m[3], "")
		return m[1] + m[2] + RelativeImport(dir, target) + m[4]
	})
}

// RelativeImport returns target as seen from fromDir, always starting with ./ or ../.
// Both are virtual slash-separated paths.
func RelativeImport(fromDir, target string) string {
	from := splitSegments(fromDir)
	to := splitSegments(target)
	common := 0
	for common < len(from) && common < len(to) && from[common] == to[common] {
		common++
	}
	up := len(from) - common
	rest := path.Join(to[common:]...)
	switch {
	case up == 0 && rest == "":
		return "./"
	case up == 0:
		return "./" + rest
	case rest == "":
		return strings.TrimSuffix(strings.Repeat("../", up), "/")
	default:
		return strings.Repeat("../", up) + rest
	}
}

func splitSegments(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}
