package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

var catLogger = logrus.WithField("tool", "cat")

// maxCatLines keeps a single observation within the model's context.
const maxCatLines = 400

type CatTool struct {
	ws *Workspace
}

func NewCatTool(ws *Workspace) *CatTool {
	catLogger.WithField("files", ws.files.Len()).Debug("Initializing cat tool")
	return &CatTool{ws: ws}
}

func (c *CatTool) Description() string {
	return fmt.Sprintf("Display the source of a project file. Usage: provide an absolute path such as '/App.tsx'. Only the first %d lines of long files are shown.", maxCatLines)
}

func (c *CatTool) Name() string {
	return "cat"
}

func (c *CatTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := catLogger.WithField("input", input)
	toolLogger.Info("Cat tool called")
	startTime := time.Now()

	if strings.TrimSpace(input) == "" {
		toolLogger.Warn("Empty file path provided")
		return "Error: Please provide a file path", nil
	}

	target := c.ws.resolve(input)
	src, ok := c.ws.file(target)
	if !ok {
		if c.ws.isDir(target) {
			return fmt.Sprintf("cat: %s: is a directory", target), nil
		}
		toolLogger.WithField("targetPath", target).Warn("File not found in project")
		return fmt.Sprintf("cat: %s: no such file", target), nil
	}

	lines := strings.Split(src, "\n")
	if len(lines) > maxCatLines {
		src = strings.Join(lines[:maxCatLines], "\n") +
			fmt.Sprintf("\n... (%d more lines)", len(lines)-maxCatLines)
	}

	toolLogger.WithFields(logrus.Fields{
		"targetPath":    target,
		"executionTime": time.Since(startTime),
		"outputLength":  len(src),
	}).Info("cat completed")

	return src, nil
}

var _ tools.Tool = (*CatTool)(nil)
