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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wrongjunior/eventbridge/internal/config"
	"github.com/wrongjunior/eventbridge/internal/logging"
	"github.com/wrongjunior/eventbridge/internal/metrics"
	"github.com/wrongjunior/eventbridge/internal/repository"
	"github.com/wrongjunior/eventbridge/internal/server"
	"github.com/wrongjunior/eventbridge/internal/service"
	transportServer "github.com/wrongjunior/eventbridge/internal/transport/server"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "eventbridge-server",
		Short: "Local backend that emits events to the eventbridge frontend",
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

	repo, err := repository.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Init(); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	registry := metrics.NewRegistry()

	hub := server.NewServer(logger, registry)
	emitter := service.NewEventService(service.EventServiceOptions{
		Event:       cfg.EventName,
		QueueSize:   cfg.QueueSize,
		Broadcaster: hub,
		Journal:     repo,
		Metrics:     registry,
	}, logger)
	downloads := service.NewDownloadService(repo, emitter, registry, logger)

	router := transportServer.SetupRouter(
		transportServer.NewHandler(emitter, downloads, logger),
		transportServer.RouterOptions{
			WSPath:    cfg.WSPath,
			WebSocket: hub.HandleWebSocket,
			Metrics:   registry.Handler(),
		},
	)
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return emitter.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		logger.Info("starting HTTP server", zap.String("addr", cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		emitter.Shutdown()
		hub.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
