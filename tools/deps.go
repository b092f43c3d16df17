package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"

	"showcase/deps"
)

var depsLogger = logrus.WithField("tool", "deps")

// DepsTool reports the npm packages the preview installs.
type DepsTool struct {
	ws *Workspace
}

func NewDepsTool(ws *Workspace) *DepsTool {
	depsLogger.WithField("dependencies", len(ws.dependencies)).Debug("Initializing deps tool")
	return &DepsTool{ws: ws}
}

func (d *DepsTool) Description() string {
	return "List the npm packages installed in the preview with their versions, marking the ones inferred from the project's imports. Optionally provide a package name to check a single package."
}

func (d *DepsTool) Name() string {
	return "deps"
}

func (d *DepsTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := depsLogger.WithField("input", input)
	toolLogger.Info("Deps tool called")
	startTime := time.Now()

	base := deps.BaseDependencies()
	describe := func(name string) string {
		origin := "base"
		if _, ok := base[name]; !ok {
			origin = "imported"
		}
		return fmt.Sprintf("%s@%s (%s)", name, d.ws.dependencies[name], origin)
	}

	query := strings.Trim(strings.TrimSpace(input), `"'`)
	if query != "" && !strings.EqualFold(query, "none") {
		name := deps.PackageName(query)
		if _, ok := d.ws.dependencies[name]; !ok {
			return fmt.Sprintf("%s is not installed in this preview", name), nil
		}
		return describe(name), nil
	}

	names := make([]string, 0, len(d.ws.dependencies))
	for name := range d.ws.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, describe(name))
	}

	toolLogger.WithFields(logrus.Fields{
		"dependencies":  len(names),
		"executionTime": time.Since(startTime),
	}).Info("deps completed")

	if len(lines) == 0 {
		return "No dependencies", nil
	}
	return strings.Join(lines, "\n"), nil
}

var _ tools.Tool = (*DepsTool)(nil)
