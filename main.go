/*
Package main is the entry point of the showcase generator.

The showcase binary serves the component generation API with its live previews,
and can run the same pipeline headlessly:

	showcase serve                       start the HTTP server
	showcase generate "a pricing card"   generate a project into a directory
	showcase chat "what is cn()?"        talk to a running server's chatbot
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"showcase/core"
)

// version is set via ldflags at build time.
var version = "dev"

// Serve command flags
var (
	servePort string
)

var rootCmd = &cobra.Command{
	Use:   "showcase",
	Short: "Streaming React component generator with sandboxed live previews",
	Long: `showcase turns prompts into React + Tailwind component projects.

A generation turn streams the model's answer, extracts the code it contains,
assembles a runnable virtual project and publishes it to a sandboxed live preview.
Configuration comes from the environment and an optional .env file.`,
	SilenceUsage: true,
	Version:      version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "server port (overrides PORT)")
	rootCmd.AddCommand(serveCmd, generateCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runServe starts the server and blocks until SIGINT or SIGTERM, then drains
// in-flight requests for up to 30 seconds.
func runServe(cmd *cobra.Command, args []string) error {
	config := core.LoadConfig()
	if servePort != "" {
		config.Port = servePort
	}

	logger := core.InitializeLogger(config)
	logger.WithField("version", version).Info("Starting showcase server")

	server, err := core.NewServer(config, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create server")
		return err
	}
	defer server.Close()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", config.Port).Info("Starting server")
		if err := e.Start(fmt.Sprintf(":%s", config.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.WithError(err).Error("Failed to start server")
		return err
	}

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to gracefully shutdown server")
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}
