package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"fooddetect/internal/dto"
	"fooddetect/internal/model"
)

// PredictionRepository implements repository.PredictionRepository for SQLite.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Insert adds a new prediction record to the database.
// CreatedAt is stored in UTC with second precision; a zero value means now.
func (r *PredictionRepository) Insert(p *model.Prediction) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC().Truncate(time.Second)

	result, err := r.db.Conn().Exec(`
		INSERT INTO predictions (upload_filename, result_filename, original_filename, filesize, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.UploadFilename, p.ResultFilename, p.OriginalFilename, p.FileSize, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a prediction by its ID. It returns nil, nil when absent.
func (r *PredictionRepository) GetByID(id int64) (*model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var p model.Prediction
	err := r.db.Conn().QueryRow(`
		SELECT id, upload_filename, result_filename, original_filename, filesize, created_at
		FROM predictions WHERE id = ?
	`, id).Scan(&p.ID, &p.UploadFilename, &p.ResultFilename, &p.OriginalFilename, &p.FileSize, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return &p, nil
}

// filterClause appends the WHERE conditions shared by GetAll and GetTotalCount.
func filterClause(filter *dto.PredictionFilters) (string, []interface{}) {
	query := ""
	args := []interface{}{}

	if filter == nil {
		return query, args
	}

	if filter.Class != "" {
		query += " AND d.class_name = ?"
		args = append(args, filter.Class)
	}

	if !filter.DateAfter.IsZero() {
		query += " AND DATE(p.created_at) >= DATE(?)"
		args = append(args, filter.DateAfter.Format("2006-01-02"))
	}

	if !filter.DateBefore.IsZero() {
		query += " AND DATE(p.created_at) <= DATE(?)"
		args = append(args, filter.DateBefore.Format("2006-01-02"))
	}

	return query, args
}

// GetAll retrieves predictions based on filter criteria, newest first.
func (r *PredictionRepository) GetAll(filter *dto.PredictionFilters) ([]model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT DISTINCT p.id, p.upload_filename, p.result_filename, p.original_filename, p.filesize, p.created_at
		FROM predictions p
		LEFT JOIN detections d ON p.id = d.prediction_id
		WHERE 1=1
	`
	where, args := filterClause(filter)
	query += where
	query += " ORDER BY p.created_at DESC, p.id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

// GetTotalCount returns the total count of predictions matching the filter.
func (r *PredictionRepository) GetTotalCount(filter *dto.PredictionFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT COUNT(DISTINCT p.id)
		FROM predictions p
		LEFT JOIN detections d ON p.id = d.prediction_id
		WHERE 1=1
	`
	where, args := filterClause(filter)
	query += where

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}

	return count, nil
}

// GetOlderThan returns predictions created strictly before cutoff.
func (r *PredictionRepository) GetOlderThan(cutoff time.Time) ([]model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, upload_filename, result_filename, original_filename, filesize, created_at
		FROM predictions WHERE created_at < ?
		ORDER BY created_at
	`, cutoff.UTC().Truncate(time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to query old predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows)
}

func scanPredictions(rows *sql.Rows) ([]model.Prediction, error) {
	var predictions []model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.ID, &p.UploadFilename, &p.ResultFilename, &p.OriginalFilename, &p.FileSize, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// GetStats returns statistics about the prediction history.
func (r *PredictionRepository) GetStats() (*model.PredictionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.PredictionStats{
		ClassCounts: make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&stats.TotalPredictions); err != nil {
		return nil, err
	}

	if err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM predictions`).Scan(&stats.TotalSizeBytes); err != nil {
		return nil, err
	}

	// Most detected dishes
	rows, err := r.db.Conn().Query(`
		SELECT class_name, COUNT(*) as cnt
		FROM detections
		GROUP BY class_name
		ORDER BY cnt DESC
		LIMIT 20
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		stats.ClassCounts[name] = count
	}

	return stats, rows.Err()
}

// Delete removes a prediction and its detections.
func (r *PredictionRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM detections WHERE prediction_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM predictions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}

	return tx.Commit()
}

// DeleteAll removes all predictions and their detections.
func (r *PredictionRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM predictions`); err != nil {
		return fmt.Errorf("failed to delete predictions: %w", err)
	}

	return nil
}
