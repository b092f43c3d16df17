package preview

import (
	"sort"
	"strings"

	"showcase/deps"
)

// CDN serving every npm package as an ES module.
const CDN = "https://esm.sh/"

// ReactVersion pins react and react-dom whenever the dependency map says "latest",
// so that every package resolves the same React instance.
const ReactVersion = "18.3.1"

// ImportMap is the browser import map handed to the sandbox.
type ImportMap struct {
	Imports map[string]string `json:"imports"`
}

func isReact(name string) bool {
	return name == "react" || name == "react-dom"
}

// BuildImportMap maps each dependency to its CDN module. Every package also gets a
// "name/" prefix entry so deep imports such as react-dom/client resolve.
func BuildImportMap(dependencies map[string]string) ImportMap {
	names := make([]string, 0, len(dependencies))
	for name := range dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	pinned := "react@" + versionOf(dependencies, "react") + ",react-dom@" + versionOf(dependencies, "react-dom")

	im := ImportMap{Imports: make(map[string]string, len(names)*2)}
	for _, name := range names {
		version := dependencies[name]
		if isReact(name) {
			version = versionOf(dependencies, name)
		}
		base := CDN + name
		if version != "" && version != deps.Latest {
			base += "@" + version
		}
		if isReact(name) {
			im.Imports[name] = base
		} else {
			im.Imports[name] = base + "?deps=" + pinned
		}
		im.Imports[name+"/"] = base + "/"
	}
	return im
}

func versionOf(dependencies map[string]string, name string) string {
	v := strings.TrimSpace(dependencies[name])
	if v == "" || v == deps.Latest {
		return ReactVersion
	}
	return v
}
