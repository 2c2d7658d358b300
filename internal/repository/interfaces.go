package repository

import (
	"time"

	"fooddetect/internal/dto"
	"fooddetect/internal/model"
)

// PredictionRepository defines the interface for prediction history operations.
type PredictionRepository interface {
	// Create operations
	Insert(p *model.Prediction) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Prediction, error)
	GetAll(filter *dto.PredictionFilters) ([]model.Prediction, error)
	GetTotalCount(filter *dto.PredictionFilters) (int, error)
	GetOlderThan(cutoff time.Time) ([]model.Prediction, error)
	GetStats() (*model.PredictionStats, error)

	// Delete operations
	Delete(id int64) error
	DeleteAll() error
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetByPredictionID(predictionID int64) ([]model.Detection, error)
	GetClassNamesByPredictionID(predictionID int64) ([]string, error)
	GetAllClassNames() ([]string, error)
}
