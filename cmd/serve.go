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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lwbackup/internal/api"
	"lwbackup/internal/job"
	"lwbackup/internal/metrics"
	"lwbackup/internal/scheduler"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daily backup schedule and the HTTP control API",
	RunE: func(*cobra.Command, []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		daily, err := scheduler.NewDaily(cfg.Schedule)
		if err != nil {
			return err //nolint:wrapcheck
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.MustRegister(reg)

		manager := buildManager(cfg)
		if err := manager.LoadFromDisk(); err != nil {
			log.Warn().Err(err).Msg("load previous reports")
		}

		baseCtx, baseCancel := context.WithCancel(context.Background())
		manager.SetBaseContext(baseCtx)

		router := setupRouter()
		api.NewAPI(manager, reg).RegisterRoutes(router)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("http server failed")
			}
		}()
		log.Info().Int("port", cfg.Port).Str("schedule", cfg.Schedule).Str("backup_dir", cfg.BackupDir).Msg("lwbackup started")

		go daily.Run(baseCtx, func(ctx context.Context) {
			if _, err := manager.RunBatch(ctx); err != nil {
				log.Warn().Err(err).Msg("scheduled batch skipped")
			}
		})

		waitForShutdownSignal()
		gracefulShutdown(srv, baseCancel, manager, shutdownTimeout)
		return nil
	},
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger("/api/v1/health", "/metrics"))
	return r
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

// gracefulShutdown stops the API and the schedule. A batch already running
// is not cancelled; it gets until timeout to finish.
func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, m *job.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !m.WaitAll(ctx) {
		log.Warn().Msg("backup batch did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
