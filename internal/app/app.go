package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	"github.com/yungbote/corrowatch-backend/internal/http"
	"github.com/yungbote/corrowatch-backend/internal/observability"
	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
	"github.com/yungbote/corrowatch-backend/internal/storage"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Storage  *storage.Router
	Central  repos.Central
	Hub      *realtime.Hub
	Metrics  *observability.Metrics
	Services Services
	Router   *gin.Engine

	shutdownOTel func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelCfg := observability.OtelConfigFromEnv()
	otelCfg.SiteID = cfg.CentralSiteID
	shutdownOTel := observability.InitOTel(ctx, log, otelCfg)
	metrics := observability.Init()

	table, err := cfg.SitesTable()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load sites config: %w", err)
	}
	router := storage.NewRouter(table, log)
	centralEP, err := router.Central(ctx)
	if err != nil {
		_ = router.Close()
		log.Sync()
		return nil, fmt.Errorf("open central site: %w", err)
	}
	central := repos.NewCentral(centralEP, log)

	hub := realtime.NewHub(log)
	if err := wireTransports(ctx, log, cfg, router, hub); err != nil {
		_ = hub.Close()
		_ = router.Close()
		log.Sync()
		return nil, err
	}

	serviceset := wireServices(log, cfg, router, central, hub, metrics)
	handlerset := wireHandlers(log, cfg, serviceset, hub)
	serviceName := ""
	if otelCfg.Enabled {
		serviceName = otelCfg.ServiceName
	}
	engine := wireRouter(log, cfg, handlerset, metrics, serviceName)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Storage:      router,
		Central:      central,
		Hub:          hub,
		Metrics:      metrics,
		Services:     serviceset,
		Router:       engine,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Start launches the background workers and the sites config watcher.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Cfg.WorkersEnabled {
		a.Services.DrainWorker.Start(ctx)
		a.Services.Pumper.Start(ctx)
		a.Services.Janitor.Start(ctx)
	}
	if a.Cfg.SitesConfig != "" {
		go func() {
			if err := a.Storage.WatchConfig(ctx, a.Cfg.SitesConfig); err != nil {
				a.Log.Warn("sites config watcher stopped", "path", a.Cfg.SitesConfig, "error", err)
			}
		}()
	}
}

// Run serves the operator API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	srv := &http.Server{Engine: a.Router}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	return srv.Run(ctx, ":"+a.Cfg.Port)
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	var errs []error
	if a.Hub != nil {
		errs = append(errs, a.Hub.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	if a.shutdownOTel != nil {
		errs = append(errs, a.shutdownOTel(context.Background()))
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}
