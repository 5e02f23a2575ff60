package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wrongjunior/eventbridge/internal/app"
	"github.com/wrongjunior/eventbridge/internal/client"
	"github.com/wrongjunior/eventbridge/internal/config"
	"github.com/wrongjunior/eventbridge/internal/logging"
	"github.com/wrongjunior/eventbridge/internal/presenter"
	"github.com/wrongjunior/eventbridge/internal/ui"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "eventbridge",
		Short: "Frontend that listens for backend events and shows them to the user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "eventbridge.yaml", "path to configuration file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	subscriber := client.NewSubscriber(client.Options{
		URL:                 cfg.ClientServerURL,
		RegistrationTimeout: cfg.RegistrationTimeout,
		ReconnectMaxBackoff: cfg.ReconnectMaxBackoff,
	}, logger)

	var in io.Reader
	if cfg.Interactive {
		in = os.Stdin
	}

	a := app.New(app.Options{
		Event:               cfg.EventName,
		MountTarget:         cfg.MountTarget,
		RegistrationTimeout: cfg.RegistrationTimeout,
	}, subscriber, presenter.NewAlertPresenter(os.Stdout, in), ui.NewRoot("eventbridge", os.Stdout), logger)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	// a second signal kills the process
	stop()
	logger.Info("shutting down client")
	a.Close()
	logger.Info("client stopped")
	return nil
}
