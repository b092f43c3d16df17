// Package deps infers the npm packages a virtual project needs from its import statements.
package deps

import (
	"regexp"
	"strings"

	"showcase/artifact"
)

// Latest is the version assigned to every inferred package.
const Latest = "latest"

var baseDependencies = map[string]string{
	"react":                    "latest",
	"react-dom":                "latest",
	"react-router-dom":         "latest",
	"tailwindcss":              "latest",
	"clsx":                     "latest",
	"tailwind-merge":           "latest",
	"class-variance-authority": "latest",
	"zustand":                  "latest",
	"@tanstack/react-query":    "latest",
	"date-fns":                 "latest",
}

// matches `import x from "p"`, `export * from "p"`, `import "p"`, `import("p")` and `require("p")`
var specifierRe = regexp.MustCompile(`(?m)(?:^[ \t]*(?:import|export)\s+(?:[^;'"()<>=]*?\bfrom\s*)?|\bimport\s*\(\s*|\brequire\s*\(\s*)["']([^"'\n]+)["']`)

// BaseDependencies returns a copy of the packages every preview gets.
func BaseDependencies() map[string]string {
	out := make(map[string]string, len(baseDependencies))
	for name, version := range baseDependencies {
		out[name] = version
	}
	return out
}

// PackageName maps an import specifier to the npm package that provides it.
// It returns "" for relative, absolute, alias and node built-in specifiers.
func PackageName(spec string) string {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "",
		strings.HasPrefix(spec, "."),
		strings.HasPrefix(spec, "/"),
		strings.HasPrefix(spec, "@/"),
		strings.HasPrefix(spec, "~/"),
		strings.HasPrefix(spec, "node:"),
		strings.Contains(spec, "://"):
		return ""
	}
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 || parts[1] == "" {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// Infer scans sources and returns every imported package missing from the base set.
func Infer(sources []string) map[string]string {
	out := make(map[string]string)
	for _, src := range sources {
		for _, m := range specifierRe.FindAllStringSubmatch(src, -1) {
			name := PackageName(m[1])
			if name == "" {
				continue
			}
			if _, ok := baseDependencies[name]; ok {
				continue
			}
			out[name] = Latest
		}
	}
	return out
}

// InferFiles is Infer over every file of a set.
func InferFiles(files *artifact.FileSet) map[string]string {
	sources := make([]string, 0, files.Len())
	for _, p := range files.Paths() {
		src, _ := files.Get(p)
		sources = append(sources, src)
	}
	return Infer(sources)
}

// Merge layers inferred over base without modifying either.
func Merge(base, inferred map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(inferred))
	for name, version := range base {
		out[name] = version
	}
	for name, version := range inferred {
		out[name] = version
	}
	return out
}

// ForFiles returns the complete dependency map for a file set.
func ForFiles(files *artifact.FileSet) map[string]string {
	return Merge(BaseDependencies(), InferFiles(files))
}
