package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

var lsLogger = logrus.WithField("tool", "ls")

type LsTool struct {
	ws *Workspace
}

func NewLsTool(ws *Workspace) *LsTool {
	lsLogger.WithField("files", ws.files.Len()).Debug("Initializing ls tool")
	return &LsTool{ws: ws}
}

func (l *LsTool) Description() string {
	return "List the files of the previewed project. Use empty input or '/' for the project root, or a directory such as '/components' to list its contents. Directories end with '/'."
}

func (l *LsTool) Name() string {
	return "ls"
}

func (l *LsTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := lsLogger.WithField("input", input)
	toolLogger.Info("Ls tool called")
	startTime := time.Now()

	target := l.ws.resolve(input)
	if _, ok := l.ws.file(target); ok {
		return target, nil
	}
	if !l.ws.isDir(target) {
		toolLogger.WithField("targetPath", target).Warn("Path not found in project")
		return fmt.Sprintf("ls: %s: no such file or directory", target), nil
	}

	dirs, files := l.ws.list(target)
	var out strings.Builder
	fmt.Fprintf(&out, "%s:\n", target)
	for _, d := range dirs {
		out.WriteString(d)
		out.WriteByte('\n')
	}
	for _, f := range files {
		out.WriteString(f)
		if target == "/" && "/"+f == l.ws.entry {
			out.WriteString("  (entry)")
		}
		out.WriteByte('\n')
	}

	toolLogger.WithFields(logrus.Fields{
		"targetPath":    target,
		"entries":       len(dirs) + len(files),
		"executionTime": time.Since(startTime),
	}).Info("ls completed")

	return strings.TrimRight(out.String(), "\n"), nil
}

var _ tools.Tool = (*LsTool)(nil)
