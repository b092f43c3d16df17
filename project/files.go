package project

import (
	"embed"
	"io/fs"
	"strings"

	"showcase/artifact"
)

//go:embed shims scaffold
var assets embed.FS

const (
	// AppModule is the module the bootstrap renders.
	AppModule = "/App.tsx"
	// IndexModule is the bootstrap module loaded by the sandbox.
	IndexModule = "/index.tsx"
	// RootModule provides the themed root, the error boundary and the placeholder.
	RootModule = "/preview-root.tsx"
	// StylesModule is the base stylesheet.
	StylesModule = "/styles.css"
)

// loadAssets reads every file under dir into a set keyed by its virtual path.
func loadAssets(dir string) *artifact.FileSet {
	files := artifact.NewFileSet()
	err := fs.WalkDir(assets, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := assets.ReadFile(p)
		if err != nil {
			return err
		}
		files.Set(strings.TrimPrefix(p, dir), string(data))
		return nil
	})
	if err != nil {
		// the assets are compiled in, a failure here is a build defect
		panic("project: read embedded " + dir + ": " + err.Error())
	}
	return files
}

var (
	shimFiles     = loadAssets("shims")
	scaffoldFiles = loadAssets("scaffold")
)

// Shims returns the UI primitive sources merged into every multi-file project.
func Shims() *artifact.FileSet {
	return shimFiles.Clone()
}

// Scaffold returns the bootstrap, stylesheet, HTML shell and tsconfig every project gets.
func Scaffold() *artifact.FileSet {
	return scaffoldFiles.Clone()
}
