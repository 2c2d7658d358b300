package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"fooddetect/internal/dto"
	"fooddetect/internal/logger"
	"fooddetect/internal/repository"
	"fooddetect/internal/service/predict"
	"fooddetect/internal/service/storage"
)

const (
	defaultPageSize = 24
	maxPageSize     = 100
	maxPage         = math.MaxInt32
)

// Deleter removes a recorded prediction and its images.
type Deleter interface {
	Delete(id int64) error
}

// Clearer removes the whole history and its images.
type Clearer interface {
	Clear() (int, error)
}

// HistoryReader looks up recorded predictions.
type HistoryReader interface {
	Get(id int64) (*dto.PredictionDetail, error)
	Classes() ([]string, error)
}

// GetPredictionsHandler returns a filtered page of the prediction history.
func GetPredictionsHandler(store *storage.FileStore, logger *logger.Logger,
	predictionRepo repository.PredictionRepository, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), defaultPageSize)
		if limit > maxPageSize {
			limit = maxPageSize
		}
		if page > maxPage {
			page = maxPage
		}

		filter := &dto.PredictionFilters{
			Class:      q.Get("class"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		predictions, err := predictionRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying predictions: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		totalCount, err := predictionRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting predictions: %v", err)
			totalCount = len(predictions)
		}

		infos := make([]dto.PredictionInfo, 0, len(predictions))
		for _, p := range predictions {
			classes := []string{}
			if detectionRepo != nil {
				classes, err = detectionRepo.GetClassNamesByPredictionID(p.ID)
				if err != nil {
					logger.Error("Error getting classes for prediction %d: %v", p.ID, err)
					classes = []string{}
				}
			}

			infos = append(infos, dto.PredictionInfo{
				ID:          p.ID,
				UploadImage: store.Upload(p.UploadFilename).WebPath,
				ResultImage: store.Result(p.ResultFilename).WebPath,
				Original:    p.OriginalFilename,
				Date:        p.CreatedAt,
				TimeOfDay:   p.CreatedAt,
				Classes:     classes,
			})
		}

		writeJSON(w, logger, http.StatusOK, dto.PredictionsData{
			Predictions: infos,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// PredictionStatsHandler returns totals and per-class detection counts.
func PredictionStatsHandler(logger *logger.Logger, predictionRepo repository.PredictionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := predictionRepo.GetStats()
		if err != nil {
			logger.Error("Error reading prediction stats: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}

// DeletePredictionHandler removes one prediction given by the "id" query
// parameter.
func DeletePredictionHandler(deleter Deleter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}

		if err := deleter.Delete(id); err != nil {
			if errors.Is(err, predict.ErrNotFound) {
				http.Error(w, "prediction not found", http.StatusNotFound)
				return
			}
			logger.Error("Failed to delete prediction %d: %v", id, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"status": "deleted", "id": id})
	}
}

// GetPredictionHandler returns one prediction with its detections.
func GetPredictionHandler(reader HistoryReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}

		detail, err := reader.Get(id)
		if err != nil {
			if errors.Is(err, predict.ErrNotFound) {
				http.Error(w, "prediction not found", http.StatusNotFound)
				return
			}
			logger.Error("Error reading prediction %d: %v", id, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, detail)
	}
}

// PredictionClassesHandler lists every class name in the history, the
// values accepted by the "class" filter.
func PredictionClassesHandler(reader HistoryReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classes, err := reader.Classes()
		if err != nil {
			logger.Error("Error listing classes: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, classes)
	}
}

// ClearPredictionsHandler deletes the whole history.
func ClearPredictionsHandler(clearer Clearer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cleared, err := clearer.Clear()
		if err != nil {
			logger.Error("Failed to clear predictions: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"status": "cleared", "count": cleared})
	}
}

// atoiDefault converts s to a positive int or returns def.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses an HTML date input ("2006-01-02"); invalid input yields the zero time.
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
