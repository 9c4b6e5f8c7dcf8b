// Command streamgate runs the Stream Data Plane gateway: provisioning,
// health probing, tokenized HLS playback, and session lifecycle for
// multi-tenant camera streams, all in one process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/nearhome/streamgate/internal/api"
	"github.com/nearhome/streamgate/internal/assets"
	"github.com/nearhome/streamgate/internal/config"
	"github.com/nearhome/streamgate/internal/httpserver"
	"github.com/nearhome/streamgate/internal/logging"
	"github.com/nearhome/streamgate/internal/obs"
	"github.com/nearhome/streamgate/internal/probe"
	"github.com/nearhome/streamgate/internal/registry"
	"github.com/nearhome/streamgate/internal/session"
	"github.com/nearhome/streamgate/internal/token"
	"github.com/nearhome/streamgate/internal/version"
)

func main() {
	logger := logging.NewLoggerWithService("streamgate")
	config.LoadDotEnv(logger)
	cfg := config.Load()

	logger.WithFields(logging.Fields{
		"storage_dir":     cfg.StorageDir,
		"probe_interval":  cfg.ProbeInterval.String(),
		"sweep_interval":  cfg.SweepInterval.String(),
		"session_idl_ttl": cfg.SessionIdleTTL.String(),
		"node_id":         cfg.NodeID,
	}).Info("starting streamgate")

	producer := assets.NewProducer(cfg.StorageDir)
	reg := registry.New(producer)
	sessions := session.New()
	verifier := token.New(cfg.TokenSecret)
	metrics := obs.NewMetrics(version.Version, version.GitCommit)

	reader := assets.NewReader(cfg.StorageDir, assets.RetryPolicy{
		MaxRetries: cfg.ReadRetries,
		BaseDelay:  cfg.ReadRetryBaseMS,
		MaxDelay:   cfg.ReadRetryMaxMS,
	}, func(tenantID, cameraID string, asset assets.Asset) {
		metrics.PlaybackReadRetriesTotal.WithLabelValues(tenantID, cameraID, string(asset)).Inc()
	}, cfg.ReadRetryRPS, cfg.ReadRetryBurst)

	health := obs.NewHealthChecker("streamgate", version.Version)
	health.StorageDir = cfg.StorageDir
	health.StreamCount = reg.Len
	health.SessionCount = sessions.Len
	health.AddCheck("config", obs.ConfigurationCheck(map[string]string{
		"STREAM_TOKEN_SECRET": string(cfg.TokenSecret),
	}))
	health.AddCheck("storage", obs.StorageCheck(cfg.StorageDir, obs.StatDir))

	probeLoop := probe.New(reg, cfg.ProbeInterval, nil, logger)
	sweepLoop := session.NewSweepLoop(sessions, cfg.SweepInterval, cfg.SessionIdleTTL, logger, func(session.SweepResult) {
		metrics.SessionSweepsTotal.Inc()
	})

	gauges := newGaugeRefresher(reg, sessions, metrics)

	probeLoop.Start()
	sweepLoop.Start()
	gauges.start()

	apiServer := &api.Server{
		Registry: reg,
		Sessions: sessions,
		Verifier: verifier,
		Reader:   reader,
		Metrics:  metrics,
		Logger:   logger,
		DoSweep: func() session.SweepResult {
			result := sessions.Sweep(cfg.SessionIdleTTL)
			metrics.SessionSweepsTotal.Inc()
			return result
		},
	}

	srv := httpserver.New(cfg.GinMode, logger, metrics, func(engine *gin.Engine) {
		apiServer.Register(engine, health)
	})
	srv.Start(cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.WithField("signal", sig.String()).Info("shutdown signal received")

	probeLoop.Stop()
	sweepLoop.Stop()
	gauges.stop()

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("error during http shutdown")
	}

	logger.Info("streamgate stopped")
}
