package dto

import (
	"encoding/json"
	"time"
)

// PredictionInfo is a history entry as returned by the API.
type PredictionInfo struct {
	ID          int64     `json:"id"`
	UploadImage string    `json:"uploadImage"`
	ResultImage string    `json:"resultImage"`
	Original    string    `json:"original"`
	Date        time.Time `json:"date"`
	TimeOfDay   time.Time `json:"timeOfDay"`
	Classes     []string  `json:"classes"`
}

// MarshalJSON customizes JSON output for PredictionInfo to format date and time-of-day.
func (p PredictionInfo) MarshalJSON() ([]byte, error) {
	type Alias PredictionInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      p.Date.Format("2006-01-02"),
		TimeOfDay: p.TimeOfDay.Format("15:04"),
		Alias:     (Alias)(p),
	})
}
