// cmd/server/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ndstrzz/taedal-v7-sub000/internal/config"
	"github.com/ndstrzz/taedal-v7-sub000/internal/database"
	"github.com/ndstrzz/taedal-v7-sub000/internal/metrics"
	"github.com/ndstrzz/taedal-v7-sub000/internal/realtime"
	"github.com/ndstrzz/taedal-v7-sub000/internal/router"
	"github.com/ndstrzz/taedal-v7-sub000/internal/services"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and realtime dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	publishers, closePublishers, err := buildPublishers(cfg, db)
	if err != nil {
		return err
	}
	defer closePublishers()

	dispatcher := realtime.NewDispatcher(realtime.DispatcherConfig{
		QueueSize:    cfg.Realtime.QueueSize,
		Workers:      cfg.Realtime.Workers,
		PublishTries: cfg.Realtime.PublishTries,
	}, m, publishers...)
	dispatcher.Start()

	objects, err := services.NewStorageService(cfg)
	if err != nil {
		return err
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.Initialize(ctx, router.Dependencies{
		DB:       db,
		Config:   cfg,
		Objects:  objects,
		Events:   dispatcher,
		Registry: reg,
		Metrics:  m,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Realtime queue not drained")
	}

	logrus.Info("Server exited")
	return nil
}

// buildPublishers returns the configured realtime transports. The log
// publisher is always present.
func buildPublishers(cfg *config.Config, db *gorm.DB) ([]realtime.Publisher, func(), error) {
	publishers := []realtime.Publisher{realtime.NewLogPublisher(logrus.StandardLogger())}
	closeFn := func() {}

	if cfg.Realtime.NATSURL != "" {
		natsPublisher, err := realtime.NewNATSPublisher(cfg.Realtime.NATSURL, cfg.Realtime.SubjectPrefix)
		if err != nil {
			return nil, nil, err
		}
		publishers = append(publishers, natsPublisher)
		closeFn = func() {
			if err := natsPublisher.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to drain NATS connection")
			}
		}
	}

	if cfg.Realtime.PGNotify && cfg.Database.Driver == "postgres" {
		publishers = append(publishers, realtime.NewPGNotifyPublisher(db, cfg.Realtime.PGChannel))
	}

	return publishers, closeFn, nil
}
