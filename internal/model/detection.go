package model

// Detection represents a detected dish in a processed upload.
type Detection struct {
	ID           int64   `json:"id"`
	PredictionID int64   `json:"prediction_id"`
	ClassIndex   int     `json:"class_index"`
	ClassName    string  `json:"class_name"`
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

// PredictionStats contains statistics about the prediction history.
type PredictionStats struct {
	TotalPredictions int            `json:"total_predictions"`
	TotalSizeBytes   int64          `json:"total_size_bytes"`
	ClassCounts      map[string]int `json:"class_counts"`
}
