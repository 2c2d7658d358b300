package storage

import (
	"fmt"
	"time"

	"fooddetect/internal/config"
	"fooddetect/internal/logger"
	"fooddetect/internal/repository"

	"github.com/robfig/cron/v3"
)

// Janitor periodically deletes predictions older than the retention window,
// together with their upload and result files. Files no prediction refers to
// are pruned by modification time.
type Janitor struct {
	store          *FileStore
	predictionRepo repository.PredictionRepository
	retention      time.Duration
	schedule       string
	cron           *cron.Cron
	logger         *logger.Logger
	now            func() time.Time
}

// SweepResult counts what one Sweep removed.
type SweepResult struct {
	Predictions int
	Files       int
}

// NewJanitor creates a Janitor. It does nothing until Start is called.
// predictionRepo may be nil when history is disabled; only files are pruned then.
func NewJanitor(cfg *config.Config, store *FileStore, predictionRepo repository.PredictionRepository, logger *logger.Logger) *Janitor {
	return &Janitor{
		store:          store,
		predictionRepo: predictionRepo,
		retention:      time.Duration(cfg.RetentionHours) * time.Hour,
		schedule:       cfg.CleanupSchedule,
		logger:         logger,
		now:            time.Now,
	}
}

// Start registers the sweep on the cron schedule and starts the scheduler.
func (j *Janitor) Start() error {
	if j.retention <= 0 {
		return fmt.Errorf("retention must be positive, got %v", j.retention)
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(); err != nil {
			j.logger.Error("Cleanup failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", j.schedule, err)
	}

	j.cron = c
	j.cron.Start()
	j.logger.Info("Janitor started: removing predictions older than %v (%s)", j.retention, j.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Sweep removes every prediction older than the retention window with its
// files, then every remaining upload or result file older than the window.
func (j *Janitor) Sweep() (SweepResult, error) {
	var res SweepResult
	cutoff := j.now().Add(-j.retention)

	if j.predictionRepo != nil {
		old, err := j.predictionRepo.GetOlderThan(cutoff)
		if err != nil {
			return res, err
		}

		for _, p := range old {
			if err := j.store.Remove(j.store.Upload(p.UploadFilename)); err != nil {
				j.logger.Warning("Error removing upload %s: %v", p.UploadFilename, err)
			}
			if err := j.store.Remove(j.store.Result(p.ResultFilename)); err != nil {
				j.logger.Warning("Error removing result %s: %v", p.ResultFilename, err)
			}
			if err := j.predictionRepo.Delete(p.ID); err != nil {
				j.logger.Error("Error deleting prediction %d: %v", p.ID, err)
				continue
			}
			res.Predictions++
		}
	}

	files, err := j.store.PruneOlderThan(cutoff)
	res.Files = files
	if err != nil {
		return res, err
	}

	if res.Predictions > 0 || res.Files > 0 {
		j.logger.Info("Removed %d predictions and %d unreferenced files older than %s",
			res.Predictions, res.Files, cutoff.Format(time.RFC3339))
	}
	return res, nil
}
