package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balduz84/passdoo/internal/app"
	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent and serve front-ends",
	Long:  `Starts the local agent: the message endpoint, the WebSocket channel and the background refresh.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Str("base_url", config.Passdoo.BaseURL).
		Str("version", common.GetFullVersion()).
		Str("log_file", common.GetLogFilePath(logger)).
		Msg("Starting Passdoo agent")

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	srv := server.New(application)

	errChan := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		errChan <- srv.Start()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	fmt.Println("Passdoo agent stopped")
	return nil
}
