// PredictionsData is a paginated response payload for the prediction history.
package dto

type PredictionsData struct {
	Predictions []PredictionInfo `json:"predictions"`
	Length      int              `json:"length"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
	Limit       int              `json:"pageSize"`
}
