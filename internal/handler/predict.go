package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"fooddetect/internal/config"
	"fooddetect/internal/dto"
	"fooddetect/internal/logger"
	"fooddetect/internal/service/predict"
	"fooddetect/internal/web"
)

// ImageField is the multipart field carrying the upload.
const ImageField = "image"

// Predictor runs the upload pipeline.
type Predictor interface {
	Predict(ctx context.Context, originalFilename string, r io.Reader) (*dto.PredictResponse, error)
}

// IndexHandler renders the empty upload page.
func IndexHandler(renderer *web.Renderer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		renderPage(w, renderer, logger, web.Page{})
	}
}

// PredictHandler handles POST /predict and renders the result page.
func PredictHandler(cfg *config.Config, predictor Predictor, renderer *web.Renderer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := predictUpload(w, r, cfg.MaxUploadSize, predictor)
		if err != nil {
			status, message := predictErrorStatus(err)
			logPredictError(logger, status, err)
			writeText(w, logger, status, message)
			return
		}

		renderPage(w, renderer, logger, web.Page{
			UploadImage: resp.UploadImage,
			ResultImage: resp.ResultImage,
			Detected:    resp.Detected,
		})
	}
}

// APIPredictHandler handles POST /api/predict and answers with JSON.
func APIPredictHandler(cfg *config.Config, predictor Predictor, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := predictUpload(w, r, cfg.MaxUploadSize, predictor)
		if err != nil {
			status, message := predictErrorStatus(err)
			logPredictError(logger, status, err)
			writeJSON(w, logger, status, map[string]string{"error": message})
			return
		}

		writeJSON(w, logger, http.StatusOK, resp)
	}
}

// predictUpload streams the first file part named ImageField into the
// predictor. The multipart body is read part by part so an absent field and
// a field with an empty filename stay distinguishable.
func predictUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, predictor Predictor) (*dto.PredictResponse, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, predict.ErrNoImage
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, predict.ErrNoImage
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, err
			}
			return nil, predict.ErrNoImage
		}

		if part.FormName() != ImageField || !isFilePart(part.Header.Get("Content-Disposition")) {
			part.Close()
			continue
		}

		defer part.Close()
		return predictor.Predict(r.Context(), part.FileName(), part)
	}
}

// isFilePart reports whether a Content-Disposition carries a filename
// parameter, even an empty one.
func isFilePart(disposition string) bool {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func predictErrorStatus(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, predict.ErrNoImage), errors.Is(err, predict.ErrEmptyImage):
		return http.StatusBadRequest, predict.ErrNoImage.Error()
	case errors.Is(err, predict.ErrNoSelection):
		return http.StatusBadRequest, predict.ErrNoSelection.Error()
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "image too large"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func logPredictError(logger *logger.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("Prediction failed: %v", err)
		return
	}
	logger.Warning("Rejected upload (%d): %v", status, err)
}

func renderPage(w http.ResponseWriter, renderer *web.Renderer, logger *logger.Logger, page web.Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderer.Index(w, page); err != nil {
		logger.Error("Error rendering page: %v", err)
	}
}

// writeText answers with message as the exact plain-text body.
func writeText(w http.ResponseWriter, logger *logger.Logger, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, message); err != nil {
		logger.Error("Error writing response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
