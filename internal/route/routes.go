package route

import (
	"net/http"

	"fooddetect/internal/config"
	"fooddetect/internal/handler"
	"fooddetect/internal/logger"
	"fooddetect/internal/middleware"
	"fooddetect/internal/repository"
	"fooddetect/internal/service/live"
	"fooddetect/internal/service/predict"
	"fooddetect/internal/service/storage"
	"fooddetect/internal/web"
)

// Dependencies are the collaborators the routes are built from. Repositories
// and Hub may be nil, which leaves the matching endpoints unregistered.
type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	Store          *storage.FileStore
	Predictions    *predict.Service
	Renderer       *web.Renderer
	PredictionRepo repository.PredictionRepository
	DetectionRepo  repository.DetectionRepository
	Hub            *live.Hub
}

// SetupRoutes registers the upload page, static files, API, log and auth
// endpoints, and wraps the mux with the access log.
func SetupRoutes(d Dependencies) http.Handler {
	mux := http.NewServeMux()
	cfg := d.Config
	admin := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(cfg, h) }

	// Static files (uploads and results)
	mux.Handle("GET /static/", http.StripPrefix(storage.StaticPrefix+"/", http.FileServer(http.Dir(cfg.StaticDir))))

	// Pages
	mux.HandleFunc("GET /", handler.IndexHandler(d.Renderer, d.Logger))
	mux.HandleFunc("POST /predict", handler.PredictHandler(cfg, d.Predictions, d.Renderer, d.Logger))
	mux.HandleFunc("GET /healthz", handler.HealthHandler)

	// API endpoints
	mux.HandleFunc("POST /api/predict", handler.APIPredictHandler(cfg, d.Predictions, d.Logger))
	if d.PredictionRepo != nil {
		mux.HandleFunc("GET /api/predictions", handler.GetPredictionsHandler(d.Store, d.Logger, d.PredictionRepo, d.DetectionRepo))
		mux.HandleFunc("GET /api/predictions/stats", handler.PredictionStatsHandler(d.Logger, d.PredictionRepo))
		mux.HandleFunc("GET /api/predictions/classes", handler.PredictionClassesHandler(d.Predictions, d.Logger))
		mux.HandleFunc("GET /api/predictions/{id}", handler.GetPredictionHandler(d.Predictions, d.Logger))
		mux.Handle("POST /api/predictions/delete", admin(handler.DeletePredictionHandler(d.Predictions, d.Logger)))
		mux.Handle("POST /api/predictions/clear", admin(handler.ClearPredictionsHandler(d.Predictions, d.Logger)))
	}
	if d.Hub != nil {
		mux.HandleFunc("GET /api/live", handler.LiveWebsocketHandler(d.Hub, d.Logger))
	}

	// Log endpoints
	mux.Handle("GET /logs/{level}", admin(handler.ShowLogsHandler(d.Logger)))
	mux.Handle("POST /logs/{level}/clear", admin(handler.ClearLogsHandler(d.Logger)))

	// Auth endpoints
	mux.HandleFunc("POST /auth/login", handler.LoginHandler(cfg, d.Logger))
	mux.HandleFunc("GET /auth/logout", handler.LogoutHandler)

	return middleware.AccessLog(d.Logger, mux)
}
