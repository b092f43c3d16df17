package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"showcase/core"
	"showcase/project"
)

// Generate command flags
var (
	generateOut     string
	generateVerbose bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Generate a component project without starting the server",
	Long: `Run one generation turn against the configured model and write the assembled
virtual project (sources, scaffold and a package.json) to a directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "generated", "output directory")
	generateCmd.Flags().BoolVarP(&generateVerbose, "verbose", "v", false, "print reasoning and turn progress to stderr")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	config := core.LoadConfig()
	if !generateVerbose {
		config.LogLevel = "error"
	}
	logger := core.InitializeLogger(config)
	logger.SetOutput(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.RequestTimeout)
	defer cancel()

	llm, err := core.NewLLM(ctx, config, logger)
	if err != nil {
		return err
	}
	controller := core.NewController(core.NewBackend(config, llm, logger), nil, config, logger)

	stderr := cmd.ErrOrStderr()
	sink := func(u core.Update) {
		switch u.Type {
		case core.UpdateRetry:
			fmt.Fprintln(stderr, "no component in the response, retrying with a stricter format")
		case core.UpdateError:
			fmt.Fprintln(stderr, "error:", u.Error)
		case core.UpdateStopped:
			fmt.Fprintln(stderr, "stopped")
		case core.UpdateArtifact:
			if generateVerbose && u.Artifact != nil {
				fmt.Fprintf(stderr, "\rreceived %d file(s), %d chars of text", u.Artifact.Files.Len(), len(u.Artifact.DisplayContent))
			}
		}
	}

	conv := core.NewConversation("")
	result, err := controller.Run(ctx, conv, strings.Join(args, " "), sink)
	if generateVerbose {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}

	if generateVerbose && result.Artifact.Reasoning != "" {
		fmt.Fprintf(stderr, "reasoning:\n%s\n\n", result.Artifact.Reasoning)
	}
	if err := writeProject(generateOut, result.Project); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.Artifact.DisplayContent != "" {
		fmt.Fprintln(out, result.Artifact.DisplayContent)
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "wrote %d files to %s (entry %s)\n", result.Project.Files.Len(), generateOut, result.Project.Entry)
	return nil
}

// writeProject writes every project file under dir plus a package.json listing
// the dependencies.
func writeProject(dir string, p *project.Project) error {
	for _, path := range p.Files.Paths() {
		src, _ := p.Files.Get(path)
		target := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(path, "/")))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(target, []byte(src), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	manifest, err := json.MarshalIndent(map[string]interface{}{
		"name":         "showcase-component",
		"private":      true,
		"main":         strings.TrimPrefix(p.Entry, "/"),
		"dependencies": p.Dependencies,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode package.json: %w", err)
	}
	manifest = append(manifest, '\n')
	if err := os.WriteFile(filepath.Join(dir, "package.json"), manifest, 0o644); err != nil {
		return fmt.Errorf("write package.json: %w", err)
	}
	return nil
}
