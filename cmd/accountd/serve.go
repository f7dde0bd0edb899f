package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skarvik/accountd/pkg/api"
	"github.com/skarvik/accountd/pkg/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the account service",
	Long:  `Start the accountd HTTP server for authentication and user management.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	srv := api.NewServer(log, cfg)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Run until a shutdown signal arrives or a background component
	// reports an unrecoverable error. The latter is deliberately fatal:
	// a server that silently stops sweeping sessions keeps honoring
	// credentials it should have expired.
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("Shutting down")
	case err := <-srv.Fatal():
		log.WithError(err).Error("Fatal background error, shutting down")

		if stopErr := srv.Stop(); stopErr != nil {
			log.WithError(stopErr).Warn("Stop error during fatal shutdown")
		}

		return err
	}

	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}

	return nil
}
