/*
Package tools provides text search over the files of the previewed project.

This file implements the GrepTool. Input is a regular expression optionally followed
by a file or directory path; every matching line is reported as path:line:text.
Output is capped so a broad pattern cannot flood the agent's context.
*/
package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

// grepLogger provides structured logging for all grep operations
var grepLogger = logrus.WithField("tool", "grep")

// maxGrepMatches bounds the lines returned for one search.
const maxGrepMatches = 100

// GrepTool searches project files with regular expressions.
type GrepTool struct {
	ws *Workspace
}

// NewGrepTool creates a search tool over ws.
func NewGrepTool(ws *Workspace) *GrepTool {
	grepLogger.WithField("files", ws.files.Len()).Debug("Initializing grep tool")
	return &GrepTool{ws: ws}
}

// Description tells the agent how to invoke the tool.
func (g *GrepTool) Description() string {
	return "Search project files for a regular expression. Format: 'pattern' to search every file, or 'pattern /path' to search one file or directory. Matches are printed as path:line:text."
}

// Name returns the identifier for this tool.
func (g *GrepTool) Name() string {
	return "grep"
}

// Call runs one search. Errors are returned as text for the agent to read.
func (g *GrepTool) Call(ctx context.Context, input string) (string, error) {
	toolLogger := grepLogger.WithField("input", input)
	toolLogger.Info("Grep tool called")
	startTime := time.Now()

	pattern, target := splitGrepInput(input)
	if pattern == "" {
		toolLogger.Warn("Empty search pattern provided")
		return "Error: Please provide a search pattern", nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		// fall back to a literal search, models rarely escape regex metacharacters
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}

	root := g.ws.resolve(target)
	paths := g.ws.under(root)
	if len(paths) == 0 {
		return fmt.Sprintf("grep: %s: no such file or directory", root), nil
	}

	var out strings.Builder
	matches := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		src, _ := g.ws.file(p)
		for i, line := range strings.Split(src, "\n") {
			if !re.MatchString(line) {
				continue
			}
			matches++
			if matches <= maxGrepMatches {
				fmt.Fprintf(&out, "%s:%d:%s\n", p, i+1, strings.TrimSpace(line))
			}
		}
	}

	toolLogger.WithFields(logrus.Fields{
		"pattern":       pattern,
		"targetPath":    root,
		"matches":       matches,
		"executionTime": time.Since(startTime),
	}).Info("grep completed")

	if matches == 0 {
		return fmt.Sprintf("No matches for %q in %s", pattern, root), nil
	}
	if matches > maxGrepMatches {
		fmt.Fprintf(&out, "... (%d more matches)\n", matches-maxGrepMatches)
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// splitGrepInput separates the pattern from a trailing path argument. A quoted
// pattern may contain spaces.
func splitGrepInput(input string) (pattern, target string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ""
	}
	if q := input[0]; q == '"' || q == '\'' {
		if end := strings.IndexByte(input[1:], q); end >= 0 {
			return input[1 : end+1], strings.TrimSpace(input[end+2:])
		}
	}
	if i := strings.LastIndex(input, " "); i >= 0 {
		if last := input[i+1:]; strings.HasPrefix(last, "/") {
			return strings.TrimSpace(input[:i]), last
		}
	}
	return input, ""
}

// Ensure GrepTool implements the tools.Tool interface
var _ tools.Tool = (*GrepTool)(nil)
