package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

var statLogger = logrus.WithField("tool", "stat")

type StatTool struct {
	ws *Workspace
}

func NewStatTool(ws *Workspace) *StatTool {
	statLogger.WithField("files", ws.files.Len()).Debug("Initializing stat tool")
	return &StatTool{ws: ws}
}

func (s *StatTool) Description() string {
	return "Show size and line count of a project file, or totals for a directory. Usage: provide a path, or '/' for the whole project."
}

func (s *StatTool) Name() string {
	return "stat"
}

func (s *StatTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := statLogger.WithField("input", input)
	toolLogger.Info("Stat tool called")
	startTime := time.Now()

	target := s.ws.resolve(input)
	var out string
	if src, ok := s.ws.file(target); ok {
		out = fmt.Sprintf("File: %s\nType: file\nSize: %d bytes\nLines: %d\nEntry: %t",
			target, len(src), lineCount(src), target == s.ws.entry)
	} else {
		paths := s.ws.under(target)
		if len(paths) == 0 {
			toolLogger.WithField("targetPath", target).Warn("Path not found in project")
			return fmt.Sprintf("stat: %s: no such file or directory", target), nil
		}
		size, lines := 0, 0
		for _, p := range paths {
			src, _ := s.ws.file(p)
			size += len(src)
			lines += lineCount(src)
		}
		out = fmt.Sprintf("Directory: %s\nType: directory\nFiles: %d\nSize: %d bytes\nLines: %d",
			target, len(paths), size, lines)
		if target == "/" && s.ws.componentName != "" {
			out += "\nComponent: " + s.ws.componentName
		}
	}

	toolLogger.WithFields(logrus.Fields{
		"targetPath":    target,
		"executionTime": time.Since(startTime),
	}).Info("stat completed")

	return out, nil
}

func lineCount(src string) int {
	if src == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(src, "\n"), "\n") + 1
}

var _ tools.Tool = (*StatTool)(nil)
