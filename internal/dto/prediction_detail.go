package dto

import "fooddetect/internal/model"

// PredictionDetail is one history entry with every stored detection.
type PredictionDetail struct {
	Prediction PredictionInfo    `json:"prediction"`
	Detections []model.Detection `json:"detections"`
}
