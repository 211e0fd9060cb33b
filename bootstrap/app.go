// Package bootstrap wires the Argus components together: configuration,
// logging, MongoDB, storage workers, the detection engine and the
// observability API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"argus/api"
	"argus/config"
	"argus/core"
	"argus/detect"
	"argus/ingest"
	"argus/storage"

	"go.uber.org/zap"
)

// App represents the Argus application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	MongoDB      *storage.MongoDB
	EventStorage *storage.EventStorage
	AlertStorage *storage.AlertStorage

	EventCh  chan *core.Event
	Pipeline *ingest.Pipeline

	Engine    *detect.Engine
	APIServer *api.API

	engineCtx    context.Context
	engineCancel context.CancelFunc
}

// NewApp creates a new application instance and initializes all
// components.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	app := &App{}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("Argus starting...")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	mongoDB, err := storage.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	app.MongoDB = mongoDB

	app.EventCh = make(chan *core.Event, cfg.Storage.BufferSize)

	eventStorage, err := storage.NewEventStorage(mongoDB, cfg, app.EventCh, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event storage: %w", err)
	}
	app.EventStorage = eventStorage
	app.AlertStorage = storage.NewAlertStorage(mongoDB, sugar)

	app.Pipeline = ingest.NewPipeline(ingest.NewMultiParser(sugar), app.EventCh, sugar)

	dedup := detect.NewDeduplicator(app.AlertStorage, sugar)
	app.Engine = detect.NewEngine(
		buildDetectors(eventStorage, dedup, cfg, sugar),
		time.Duration(cfg.Engine.IntervalSeconds)*time.Second,
		sugar,
	)

	app.APIServer = api.NewAPI(eventStorage, app.AlertStorage, app.Engine, mongoDB, cfg, sugar)

	return app, nil
}

// buildDetectors assembles the detector list in priority order.
func buildDetectors(events core.EventStore, dedup *detect.Deduplicator, cfg *config.Config, sugar *zap.SugaredLogger) []detect.Detector {
	det := cfg.Detection
	return []detect.Detector{
		detect.NewSSHBruteForceDetector(events, dedup, det.SSHBruteForce, sugar),
		detect.NewRDPBruteForceDetector(events, dedup, det.RDPBruteForce, sugar),
		detect.NewPrivilegeEscalationDetector(events, dedup, det.PrivilegeEscalation.Enabled, det.PrivilegeEscalation.WindowMinutes, sugar),
		detect.NewMalwareDetector(events, dedup, det.Malware, sugar),
		detect.NewLateralMovementDetector(events, dedup, det.LateralMovement.Enabled, det.LateralMovement.WindowMinutes, det.LateralMovement.HostThreshold, sugar),
		detect.NewDataExfiltrationDetector(events, dedup, det.DataExfiltration.Enabled, det.DataExfiltration.WindowMinutes, sugar),
		detect.NewAnomalyDetector(events, dedup, det.Anomaly.Enabled, det.Anomaly.BaselineDays, det.Anomaly.Threshold, sugar),
		detect.NewCorrelationEngine(events, dedup, det.Correlation.Enabled, det.Correlation.WindowMinutes, sugar),
		detect.NewComplianceDetector(events, dedup, det.Compliance.Enabled, det.Compliance.FailedAuthThreshold, sugar),
	}
}

// Start launches the storage workers, the detection engine and the API
// server.
func (a *App) Start(ctx context.Context) error {
	a.EventStorage.Start(1)
	a.Sugar.Info("Event storage workers started")

	a.engineCtx, a.engineCancel = context.WithCancel(ctx)
	a.EventStorage.StartRetention(a.engineCtx, a.Config.Storage.RetentionDays, time.Hour)
	a.Engine.Start(a.engineCtx)

	go func() {
		addr := fmt.Sprintf("%s:%d", a.Config.API.Host, a.Config.API.Port)
		a.Sugar.Infof("API server listening on %s", addr)
		if err := a.APIServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorf("API server error: %v", err)
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	// Stop the detection timer; cycles in flight run to completion.
	a.Engine.Stop()
	if a.engineCancel != nil {
		a.engineCancel()
	}

	// Close the ingestion channel and wait for the storage workers to
	// drain it.
	close(a.EventCh)
	a.EventStorage.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.APIServer.Stop(ctx); err != nil {
		a.Sugar.Errorf("API server shutdown error: %v", err)
	}
	if err := a.MongoDB.Close(ctx); err != nil {
		a.Sugar.Errorf("MongoDB shutdown error: %v", err)
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
