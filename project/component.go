package project

import (
	"fmt"
	"regexp"
	"strings"
)

// SentinelComponent is the name used when no rule identifies the component.
const SentinelComponent = "GeneratedComponent"

// componentRule extracts a component name from single-file code.
type componentRule struct {
	name string
	re   *regexp.Regexp
}

func (r componentRule) match(code string) (string, bool) {
	m := r.re.FindStringSubmatch(code)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// componentRules are evaluated in order; the first match wins.
var componentRules = []componentRule{
	{"default export function", regexp.MustCompile(`\bexport\s+default\s+(?:async\s+)?function\s+([A-Za-z_$][\w$]*)`)},
	{"default export class", regexp.MustCompile(`\bexport\s+default\s+class\s+([A-Za-z_$][\w$]*)`)},
	{"default export identifier", regexp.MustCompile(`(?m)\bexport\s+default\s+([A-Z][\w$]*)\s*;?\s*$`)},
	{"exported const", regexp.MustCompile(`\bexport\s+(?:const|let|var)\s+([A-Z][\w$]*)\s*(?::[^=]+)?=`)},
	{"exported function", regexp.MustCompile(`\bexport\s+function\s+([A-Z][\w$]*)\s*\(`)},
	{"function declaration", regexp.MustCompile(`\bfunction\s+([A-Z][\w$]*)\s*\(`)},
	{"arrow const", regexp.MustCompile(`\bconst\s+([A-Z][\w$]*)\s*(?::[^=]+)?=\s*(?:React\.memo\(|memo\()?(?:async\s*)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=>`)},
	{"const call", regexp.MustCompile(`\bconst\s+([A-Z][\w$]*)\s*(?::[^=]+)?=\s*\(`)},
}

// DetectComponentName returns the component single-file code renders, falling back to
// SentinelComponent. The boolean reports whether a rule matched.
func DetectComponentName(code string) (string, bool) {
	for _, rule := range componentRules {
		if name, ok := rule.match(code); ok {
			return name, true
		}
	}
	return SentinelComponent, false
}

// DefaultProps is the permissive bag every standalone component receives.
const DefaultProps = `{
  title: "Preview",
  description: "Generated component preview",
  label: "Label",
  placeholder: "Type here...",
  value: "",
  items: [],
  data: [],
  options: [],
  open: true,
  variant: "default",
  size: "default",
  className: "",
  onClick: () => {},
  onChange: () => {},
  onSubmit: () => {},
  onClose: () => {},
  onOpenChange: () => {},
}`

var (
	importStmtRe         = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:[^;'"]*?\bfrom\s*)?["']([^"']+)["'][ \t]*;?[ \t]*\r?\n?`)
	exportDefaultIdentRe = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+[A-Za-z_$][\w$]*[ \t]*;?[ \t]*\r?$\n?`)
	exportListRe         = regexp.MustCompile(`(?m)^[ \t]*export\s*\{[^}]*\}[ \t]*(?:from\s*["'][^"']+["'])?[ \t]*;?[ \t]*\r?\n?`)
	anonDefaultFuncRe    = regexp.MustCompile(`\bexport\s+default\s+(async\s+)?function\s*\(`)
	anonDefaultClassRe   = regexp.MustCompile(`\bexport\s+default\s+class\s*(extends\b|\{)`)
	exportDefaultDeclRe  = regexp.MustCompile(`\bexport\s+default\s+((?:async\s+)?function\b|class\b)`)
	exportDefaultExprRe  = regexp.MustCompile(`\bexport\s+default\s+`)
	exportDeclRe         = regexp.MustCompile(`\bexport\s+((?:async\s+)?function\b|class\b|const\b|let\b|var\b|interface\b|type\b|enum\b)`)
)

// hooks the wrapper always binds, so code that forgot its react import still runs
var wrapperReactNames = []string{
	"useState", "useEffect", "useMemo", "useRef", "useCallback",
	"useReducer", "useContext", "createContext", "Fragment",
}

var (
	importClauseRe = regexp.MustCompile(`^\s*import\s+(type\s+)?([^;'"]*?)\s*from\s*["']`)
	namedImportsRe = regexp.MustCompile(`\{([^}]*)\}`)
)

// reactImport builds the wrapper's single react import. It binds the fixed hook
// list plus every value specifier the code imported from react itself, and
// re-binds default or namespace aliases other than React.
func reactImport(code string) string {
	names := append([]string(nil), wrapperReactNames...)
	bound := make(map[string]bool, len(names))
	for _, n := range names {
		bound[n] = true
	}
	var aliases []string

	for _, stmt := range importStmtRe.FindAllStringSubmatch(code, -1) {
		if stmt[1] != "react" {
			continue
		}
		m := importClauseRe.FindStringSubmatch(stmt[0])
		if m == nil || m[1] != "" {
			continue
		}
		clause := m[2]
		if named := namedImportsRe.FindStringSubmatch(clause); named != nil {
			for _, spec := range strings.Split(named[1], ",") {
				spec = strings.Join(strings.Fields(spec), " ")
				if spec == "" || strings.HasPrefix(spec, "type ") {
					continue
				}
				local := spec
				if i := strings.LastIndex(spec, " as "); i >= 0 {
					local = spec[i+len(" as "):]
				}
				if bound[local] {
					continue
				}
				bound[local] = true
				names = append(names, spec)
			}
			clause = namedImportsRe.ReplaceAllString(clause, "")
		}
		for _, part := range strings.Split(clause, ",") {
			alias := strings.TrimPrefix(strings.Join(strings.Fields(part), " "), "* as ")
			if alias == "" || alias == "React" || bound[alias] {
				continue
			}
			bound[alias] = true
			aliases = append(aliases, alias)
		}
	}

	line := `import React, { ` + strings.Join(names, ", ") + ` } from "react";`
	for _, alias := range aliases {
		line += "\nconst " + alias + " = React;"
	}
	return line
}

// stripModuleSyntax removes the imports the wrapper provides itself (react and local
// modules) and turns exports into plain declarations. An anonymous default export
// becomes a declaration of SentinelComponent; the boolean reports that case.
func stripModuleSyntax(code string) (string, bool) {
	out := importStmtRe.ReplaceAllStringFunc(code, func(stmt string) string {
		m := importStmtRe.FindStringSubmatch(stmt)
		if isProvidedImport(m[1]) {
			return ""
		}
		return stmt
	})
	out = exportListRe.ReplaceAllString(out, "")
	out = exportDefaultIdentRe.ReplaceAllString(out, "")

	anonymous := false
	if anonDefaultFuncRe.MatchString(out) {
		out = anonDefaultFuncRe.ReplaceAllString(out, "${1}function "+SentinelComponent+"(")
		anonymous = true
	}
	if anonDefaultClassRe.MatchString(out) {
		out = anonDefaultClassRe.ReplaceAllString(out, "class "+SentinelComponent+" $1")
		anonymous = true
	}
	out = exportDefaultDeclRe.ReplaceAllString(out, "$1")
	if exportDefaultExprRe.MatchString(out) {
		out = exportDefaultExprRe.ReplaceAllString(out, "const "+SentinelComponent+" = ")
		anonymous = true
	}
	out = exportDeclRe.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out), anonymous
}

func isProvidedImport(spec string) bool {
	return spec == "react" ||
		strings.HasPrefix(spec, ".") ||
		strings.HasPrefix(spec, "/") ||
		strings.HasPrefix(spec, "@/")
}

// wrapCode turns single-file code into an /App.tsx module whose default export
// renders the detected component with DefaultProps.
func wrapCode(code string) (src, name string, ok bool) {
	name, detected := DetectComponentName(code)
	body, anonymous := stripModuleSyntax(code)
	if !detected && !anonymous {
		return "", "", false
	}
	if !detected {
		name = SentinelComponent
	}

	src = fmt.Sprintf(`%s

%s

const __previewDefaultProps: any = %s;

export default function __PreviewApp() {
  return React.createElement(%s, __previewDefaultProps);
}
`, reactImport(code), body, DefaultProps, name)
	return src, name, true
}

// entryWrapper renders the module at entry, picking its default export or its first
// exported function.
func entryWrapper(importPath string) string {
	return fmt.Sprintf(`import * as React from "react";
import * as Entry from "%s";
import { NoComponent } from "./preview-root";

const defaultProps: any = %s;

const Component: any =
  (Entry as any).default ??
  Object.values(Entry).find((value) => typeof value === "function");

export default function PreviewApp() {
  if (!Component) {
    return <NoComponent />;
  }
  return <Component {...defaultProps} />;
}
`, importPath, DefaultProps)
}

const placeholderApp = `import * as React from "react";
import { NoComponent } from "./preview-root";

export default function PreviewApp() {
  return <NoComponent />;
}
`
