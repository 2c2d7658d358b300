package sqlite

import (
	"fmt"

	"fooddetect/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// InsertBatch adds multiple detections in a single transaction.
func (r *DetectionRepository) InsertBatch(detections []model.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (prediction_id, class_index, class_name, label, confidence, x, y, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, det := range detections {
		if _, err := stmt.Exec(det.PredictionID, det.ClassIndex, det.ClassName, det.Label, det.Confidence,
			det.X, det.Y, det.Width, det.Height); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	return tx.Commit()
}

// GetByPredictionID retrieves all detections for a prediction.
func (r *DetectionRepository) GetByPredictionID(predictionID int64) ([]model.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, prediction_id, class_index, class_name, label, confidence, x, y, width, height
		FROM detections WHERE prediction_id = ?
		ORDER BY id
	`, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []model.Detection
	for rows.Next() {
		var det model.Detection
		if err := rows.Scan(&det.ID, &det.PredictionID, &det.ClassIndex, &det.ClassName, &det.Label,
			&det.Confidence, &det.X, &det.Y, &det.Width, &det.Height); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}

	return detections, rows.Err()
}

// GetClassNamesByPredictionID returns the distinct class names of a prediction.
func (r *DetectionRepository) GetClassNamesByPredictionID(predictionID int64) ([]string, error) {
	return r.queryNames(`SELECT DISTINCT class_name FROM detections WHERE prediction_id = ? ORDER BY class_name`, predictionID)
}

// GetAllClassNames returns a list of all class names ever detected.
func (r *DetectionRepository) GetAllClassNames() ([]string, error) {
	return r.queryNames(`SELECT DISTINCT class_name FROM detections ORDER BY class_name`)
}

func (r *DetectionRepository) queryNames(query string, args ...interface{}) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query class names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan class name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}
