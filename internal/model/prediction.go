package model

import "time"

// Prediction represents one processed upload.
type Prediction struct {
	ID               int64     `json:"id"`
	UploadFilename   string    `json:"upload_filename"`
	ResultFilename   string    `json:"result_filename"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"filesize"`
	CreatedAt        time.Time `json:"created_at"`
}
