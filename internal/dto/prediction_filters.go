// PredictionFilters describe user-provided filters to narrow the prediction history.
package dto

import "time"

type PredictionFilters struct {
	Class      string
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
