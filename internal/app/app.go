package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fooddetect/internal/config"
	"fooddetect/internal/logger"
	"fooddetect/internal/repository"
	"fooddetect/internal/repository/sqlite"
	"fooddetect/internal/route"
	"fooddetect/internal/service/ai"
	"fooddetect/internal/service/ai/yolo"
	"fooddetect/internal/service/live"
	"fooddetect/internal/service/predict"
	"fooddetect/internal/service/storage"
	"fooddetect/internal/translate"
	"fooddetect/internal/web"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *sqlite.DB
	detector *Detector
	hub      *live.Hub
	janitor  *storage.Janitor
	server   *http.Server
}

// Detector is the configured detection chain: the YOLO pool, optionally
// behind the Redis inference cache.
type Detector struct {
	ai.Detector
	yolo  *yolo.Detector
	cache *ai.RedisCache
}

// NewDetector loads the model and, when REDIS_ADDR is set, wraps it with the
// inference cache. An unreachable Redis disables the cache with a warning.
func NewDetector(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Detector, error) {
	model, err := yolo.NewDetector(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load detector: %w", err)
	}

	d := &Detector{Detector: model, yolo: model}
	if cfg.RedisAddr == "" {
		return d, nil
	}

	cache, err := ai.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warning("Inference cache disabled: %v", err)
		return d, nil
	}

	d.cache = cache
	d.Detector = ai.NewCachedDetector(model, cache, cfg.RedisCacheTTL, logger)
	logger.Info("Inference cache enabled (%s, ttl %v)", cfg.RedisAddr, cfg.RedisCacheTTL)
	return d, nil
}

// Close releases the networks and the cache connection.
func (d *Detector) Close() {
	if d.cache != nil {
		d.cache.Close()
	}
	d.yolo.Close()
}

func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.config

	store, err := storage.NewFileStore(cfg)
	if err != nil {
		return err
	}

	translations, err := translate.Load(cfg.TranslationsPath)
	if err != nil {
		return err
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}

	a.detector, err = NewDetector(context.Background(), cfg, a.logger)
	if err != nil {
		return err
	}

	a.hub = live.NewHub(a.logger)
	opts := []predict.Option{predict.WithPublisher(a.hub)}

	deps := route.Dependencies{
		Config:   cfg,
		Logger:   a.logger,
		Store:    store,
		Renderer: renderer,
		Hub:      a.hub,
	}

	var history repository.PredictionRepository
	if cfg.DatabasePath != "" {
		a.db, err = sqlite.New(cfg.DatabasePath)
		if err != nil {
			return err
		}
		predictionRepo := sqlite.NewPredictionRepository(a.db)
		detectionRepo := sqlite.NewDetectionRepository(a.db)
		opts = append(opts, predict.WithHistory(predictionRepo, detectionRepo))
		deps.PredictionRepo = predictionRepo
		deps.DetectionRepo = detectionRepo
		history = predictionRepo
	} else {
		a.logger.Warning("DATABASE_PATH is empty, prediction history disabled")
	}

	if cfg.RetentionHours > 0 {
		a.janitor = storage.NewJanitor(cfg, store, history, a.logger)
	}

	deps.Predictions = predict.NewService(store, a.detector, translations, a.logger, opts...)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           route.SetupRoutes(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
	}
	return nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	defer a.Close()

	go a.hub.Run()
	if a.janitor != nil {
		if err := a.janitor.Start(); err != nil {
			return err
		}
	}

	a.logger.Info("Food detection server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Model: %s, static files: %s", a.config.ModelPath, a.config.StaticDir)

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// Close stops background work and releases every resource. It is safe on a
// partially initialized App.
func (a *App) Close() {
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.detector != nil {
		a.detector.Close()
		a.detector = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Error closing database: %v", err)
		}
		a.db = nil
	}
	if a.logger != nil {
		a.logger.Close()
	}
}
