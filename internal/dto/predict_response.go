package dto

import "time"

// PredictResponse is the outcome of one upload, rendered into the page or
// returned as JSON.
type PredictResponse struct {
	ID          int64    `json:"id,omitempty"`
	UploadImage string   `json:"uploadImage"`
	ResultImage string   `json:"resultImage"`
	Detected    []string `json:"detected"`
}

// PredictionEvent is pushed to live viewers after every prediction.
type PredictionEvent struct {
	PredictResponse
	CreatedAt time.Time `json:"createdAt"`
}
