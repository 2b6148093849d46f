package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"sras/internal/clock"
	"sras/internal/config"
	"sras/internal/logger"
	"sras/internal/metrics"
	"sras/internal/repository/sqlite"
	"sras/internal/route"
	"sras/internal/service"
	"sras/internal/service/ai"
	"sras/internal/service/capture"
)

// Input sizes of the two SSD models.
var (
	generalInputSize   = image.Pt(300, 300)
	violationInputSize = image.Pt(300, 300)
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	camera    capture.Camera
	detectors []*ai.DetectorService
	manager   *service.Manager
}

// NewApp loads configuration and builds every service. Failing to open the
// database or the camera is fatal.
func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cam, err := sqlite.NewCameraRepository(db).GetOrCreate(context.Background(), cfg.CameraName, cfg.CameraURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register camera: %w", err)
	}

	camera, err := capture.OpenCamera(cfg.CameraURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open camera: %w", err)
	}

	general := ai.NewDetectorService("general", cfg.GeneralModelPath, cfg.GeneralConfigPath, cfg.GeneralLabelsPath, generalInputSize, log)
	violation := ai.NewDetectorService("violation", cfg.ViolationModelPath, cfg.ViolationConfigPath, cfg.ViolationLabelsPath, violationInputSize, log)

	violations := sqlite.NewViolationRepository(db, cfg.DedupTimeWindow)
	mng, err := service.NewManager(cfg, camera, general, violation, violations, cam, clock.Real{}, log, metrics.New())
	if err != nil {
		camera.Close()
		db.Close()
		return nil, err
	}

	return &App{
		config:    cfg,
		logger:    log,
		db:        db,
		camera:    camera,
		detectors: []*ai.DetectorService{general, violation},
		manager:   mng,
	}, nil
}

// Run serves HTTP and the pipeline until ctx is done, then shuts both down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	defer a.manager.Stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: route.SetupRoutes(a.manager, a.config, a.logger),
	}

	a.logger.Info("🚀 Roadside violation server")
	a.logger.Info("📍 URL: http://localhost:%d/video", a.config.Port)
	a.logger.Info("📷 Camera: %s (%s)", a.config.CameraName, a.config.CameraURL)
	a.logger.Info("💾 Database: %s", a.config.DBPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		// streaming clients keep connections open, force them closed
		server.Close()
	}
	return nil
}

func (a *App) close() {
	for _, d := range a.detectors {
		d.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
