package project

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcase/artifact"
)

func mustGet(t *testing.T, files *artifact.FileSet, p string) string {
	t.Helper()
	src, ok := files.Get(p)
	require.True(t, ok, "missing %s in %v", p, files.Paths())
	return src
}

func TestAssembleButtonScenario(t *testing.T) {
	a := artifact.Parse(`<files entry="/App.tsx"><file path="/App.tsx">export default function App(){return <button>Hi</button>}</file></files>`)

	p := Assemble(FromArtifact(a))

	assert.Equal(t, "/App.tsx", p.Entry)
	assert.False(t, p.Placeholder)
	assert.Equal(t, "App", p.ComponentName)
	assert.Equal(t, "export default function App(){return <button>Hi</button>}", mustGet(t, p.Files, "/App.tsx"))
	assert.False(t, p.Files.Has("/GeneratedApp.tsx"))

	index := mustGet(t, p.Files, IndexModule)
	assert.Contains(t, index, `import App from "./App"`)
	assert.Contains(t, index, "<PreviewRoot>")
	for _, scaffold := range []string{"/styles.css", "/public/index.html", "/tsconfig.json", RootModule} {
		assert.True(t, p.Files.Has(scaffold), scaffold)
	}
	assert.Contains(t, mustGet(t, p.Files, "/public/index.html"), "cdn.tailwindcss.com")
	assert.Contains(t, mustGet(t, p.Files, "/tsconfig.json"), `"@/*": ["./*"]`)
	assert.Equal(t, "latest", p.Dependencies["react"])
}

func TestAssembleRenamesCollidingApp(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/entry.tsx", "import App from \"./App\"\nexport default function Entry() { return <App /> }")
	files.Set("/App.tsx", "export default function App() { return <p>model app</p> }")
	files.Set("/GeneratedApp.tsx", "export const taken = true")

	p := Assemble(Input{Files: files})

	assert.Equal(t, "/entry.tsx", p.Entry)
	assert.Equal(t, "export default function App() { return <p>model app</p> }", mustGet(t, p.Files, "/GeneratedApp2.tsx"))
	assert.Equal(t, "export const taken = true", mustGet(t, p.Files, "/GeneratedApp.tsx"))
	assert.Contains(t, mustGet(t, p.Files, "/entry.tsx"), `import App from "./GeneratedApp2"`)

	wrapper := mustGet(t, p.Files, "/App.tsx")
	assert.Contains(t, wrapper, `import * as Entry from "./entry"`)
	assert.Contains(t, wrapper, "NoComponent")
}

func TestAssembleWrapsAppWithoutDefaultExport(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/App.tsx", "export function App() { return <Button>Go</Button> }")

	p := Assemble(Input{Files: files, EntryFile: "/App.tsx"})

	assert.Equal(t, "/GeneratedApp.tsx", p.Entry)
	renamed := mustGet(t, p.Files, "/GeneratedApp.tsx")
	assert.Contains(t, renamed, `import { Button } from "./components/ui/button";`)
	assert.Contains(t, mustGet(t, p.Files, "/App.tsx"), `import * as Entry from "./GeneratedApp"`)
}

func TestAssembleNestedEntryAndShims(t *testing.T) {
	a := artifact.Parse(`<files entry="/components/Hero.tsx">
<file path="/components/Hero.tsx">
import { cn } from "@/lib/utils"
import { motion } from "framer-motion"
import { format } from "date-fns"
import confetti from "canvas-confetti"
export default function Hero() {
  return <Card className="p-4
     shadow"><Badge>{format(new Date(), "PP")}</Badge></Card
}
</file>
<file path="/components/ui/button.tsx">export const Button = () => null</file>
</files>`)

	p := Assemble(FromArtifact(a))

	assert.Equal(t, "/components/Hero.tsx", p.Entry)
	hero := mustGet(t, p.Files, "/components/Hero.tsx")
	assert.Contains(t, hero, `from "../lib/utils"`)
	assert.Contains(t, hero, `import { Card } from "./ui/card";`)
	assert.Contains(t, hero, `className="p-4 shadow"`)
	assert.Contains(t, hero, "</Card>")
	assert.Contains(t, hero, "// removed unsupported import: framer-motion")

	assert.Equal(t, "export const Button = () => null", mustGet(t, p.Files, "/components/ui/button.tsx"))
	for _, shim := range []string{"/components/ui/card.tsx", "/components/ui/badge.tsx", "/components/ui/separator.tsx", "/lib/utils.ts"} {
		assert.True(t, p.Files.Has(shim), shim)
	}
	assert.Contains(t, mustGet(t, p.Files, "/components/ui/card.tsx"), `from "../../lib/utils"`)

	assert.Contains(t, mustGet(t, p.Files, "/App.tsx"), `import * as Entry from "./components/Hero"`)
	assert.Equal(t, "latest", p.Dependencies["canvas-confetti"])
	assert.NotContains(t, p.Dependencies, "framer-motion")
}

func TestAssembleEntryFallsBackToFirstFile(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/Widget.tsx", "export default function Widget() { return null }")
	files.Set("/util.ts", "export const x = 1")

	p := Assemble(Input{Files: files})
	assert.Equal(t, "/Widget.tsx", p.Entry)
	assert.Equal(t, "Widget", p.ComponentName)
}

func TestAssembleRenamesModelBootstrap(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/index.tsx", "export default function Landing() { return <main /> }")

	p := Assemble(Input{Files: files, EntryFile: "/index.tsx"})

	assert.Equal(t, "/GeneratedIndex.tsx", p.Entry)
	assert.Contains(t, mustGet(t, p.Files, IndexModule), "createRoot")
	assert.Contains(t, mustGet(t, p.Files, "/App.tsx"), `"./GeneratedIndex"`)
}

func TestAssembleSingleCode(t *testing.T) {
	code := `import React, { useState } from "react"
import { Button } from "@/components/ui/button"
import dayjs from "dayjs"

export default function Counter({ title }) {
  const [n, setN] = useState(0)
  return <Card><Button onClick={() => setN(n + 1)}>{title} {n}</Button></Card>
}`

	p := Assemble(Input{Code: code})

	assert.False(t, p.Placeholder)
	assert.Equal(t, "Counter", p.ComponentName)
	assert.Equal(t, AppModule, p.Entry)

	app := mustGet(t, p.Files, AppModule)
	assert.Contains(t, app, "function Counter(")
	assert.NotContains(t, app, "export default function Counter")
	assert.Contains(t, app, "React.createElement(Counter, __previewDefaultProps)")
	assert.Contains(t, app, `import dayjs from "dayjs"`)
	assert.Contains(t, app, `import { Button } from "./components/ui/button";`)
	assert.Contains(t, app, `import { Card } from "./components/ui/card";`)
	assert.Equal(t, 1, strings.Count(app, `from "react"`))
	assert.True(t, p.Files.Has("/components/ui/button.tsx"))
	assert.Equal(t, "latest", p.Dependencies["dayjs"])
}

func TestAssembleSingleCodeKeepsReactImports(t *testing.T) {
	code := `import React, { forwardRef, memo, useId, useState } from "react"
import * as R from "react"

const Fancy = memo(forwardRef((props, ref) => {
  const id = useId()
  const [on] = useState(false)
  return <input id={id} ref={ref} data-on={on} />
}))

export default Fancy`

	p := Assemble(Input{Code: code})

	assert.Equal(t, "Fancy", p.ComponentName)
	app := mustGet(t, p.Files, AppModule)
	require.Equal(t, 1, strings.Count(app, `from "react"`))

	header := app[strings.Index(app, "{")+1 : strings.Index(app, "}")]
	specifiers := strings.Split(strings.ReplaceAll(header, " ", ""), ",")
	for _, name := range []string{"forwardRef", "memo", "useId", "useState"} {
		count := 0
		for _, spec := range specifiers {
			if spec == name {
				count++
			}
		}
		assert.Equal(t, 1, count, name)
	}
	assert.Contains(t, app, "const R = React;")
	assert.Contains(t, app, "React.createElement(Fancy, __previewDefaultProps)")
}

func TestReactImport(t *testing.T) {
	tests := map[string]struct {
		code    string
		want    []string
		notWant []string
	}{
		"no react import": {
			code: "const A = () => <div />",
			want: []string{`import React, { useState,`, `Fragment } from "react";`},
		},
		"aliased specifier": {
			code: `import { useLayoutEffect as useLE, Children } from "react"`,
			want: []string{"Fragment, useLayoutEffect as useLE, Children }"},
		},
		"type specifiers skipped": {
			code:    `import { type FC, cloneElement } from "react"` + "\n" + `import type { ReactNode } from "react"`,
			want:    []string{"Fragment, cloneElement }"},
			notWant: []string{"FC", "ReactNode"},
		},
		"other modules ignored": {
			code:    `import { motion } from "framer"`,
			notWant: []string{"motion"},
		},
		"default alias": {
			code: `import Rx from "react"`,
			want: []string{"\nconst Rx = React;"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := reactImport(tt.code)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, got, w)
			}
		})
	}
}

func TestAssembleSingleCodeWrapperNamesDoNotCollide(t *testing.T) {
	code := `const defaultProps = { label: "New" }

function PreviewApp() { return null }

export default function Tag(props = defaultProps) {
  return <Badge>{props.label}</Badge>
}`

	p := Assemble(Input{Code: code})

	app := mustGet(t, p.Files, AppModule)
	assert.Equal(t, 1, strings.Count(app, "const defaultProps"))
	assert.Equal(t, 1, strings.Count(app, "function PreviewApp("))
	assert.Contains(t, app, "export default function __PreviewApp()")
	assert.Contains(t, app, "React.createElement(Tag, __previewDefaultProps)")
}

func TestAssembleAnonymousDefault(t *testing.T) {
	p := Assemble(Input{Code: "export default () => <div>anon</div>"})
	assert.False(t, p.Placeholder)
	assert.Equal(t, SentinelComponent, p.ComponentName)
	app := mustGet(t, p.Files, AppModule)
	assert.Contains(t, app, "const GeneratedComponent = () => <div>anon</div>")
	assert.Contains(t, app, "React.createElement(GeneratedComponent, __previewDefaultProps)")
}

func TestAssemblePlaceholder(t *testing.T) {
	tests := map[string]Input{
		"empty":           {},
		"code without ui": {Code: "const x = 1;\nconsole.log(x)"},
		"empty file set":  {Files: artifact.NewFileSet()},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			p := Assemble(in)
			assert.True(t, p.Placeholder)
			assert.Equal(t, AppModule, p.Entry)
			assert.Contains(t, mustGet(t, p.Files, AppModule), "<NoComponent />")
			assert.Contains(t, mustGet(t, p.Files, RootModule), "No component found")
		})
	}
}

func TestAssembleMergesModelStylesheet(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/App.tsx", "export default function App() { return null }")
	files.Set("/styles.css", ".hero { color: red; }")

	p := Assemble(Input{Files: files})
	css := mustGet(t, p.Files, "/styles.css")
	assert.Contains(t, css, "--background")
	assert.True(t, strings.HasSuffix(css, ".hero { color: red; }"))
}

func TestOverlayDoesNotMutate(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/App.tsx", "generated")
	files.Set("/b.tsx", "b")
	edits := artifact.NewFileSet()
	edits.Set("/App.tsx", "edited")
	edits.Set("/c.tsx", "c")

	out := Overlay(files, edits)

	assert.Equal(t, "edited", mustGet(t, out, "/App.tsx"))
	assert.Equal(t, "c", mustGet(t, out, "/c.tsx"))
	assert.Equal(t, "generated", mustGet(t, files, "/App.tsx"))
	assert.Equal(t, 2, files.Len())
	assert.Equal(t, []string{"/App.tsx", "/b.tsx", "/c.tsx"}, out.Paths())
}

func TestWithEditsRecomputesDependencies(t *testing.T) {
	files := artifact.NewFileSet()
	files.Set("/App.tsx", "export default function App() { return null }")
	p := Assemble(Input{Files: files})

	edits := artifact.NewFileSet()
	edits.Set("/App.tsx", "import { z } from \"zod\"\nexport default function App() { return null }")
	edited := p.WithEdits(edits)

	assert.Equal(t, "latest", edited.Dependencies["zod"])
	assert.NotContains(t, p.Dependencies, "zod")
	assert.Same(t, p, p.WithEdits(nil))
}
