package predict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"fooddetect/internal/dto"
	"fooddetect/internal/logger"
	"fooddetect/internal/model"
	"fooddetect/internal/repository"
	"fooddetect/internal/service/ai"
	"fooddetect/internal/service/storage"
	"fooddetect/internal/translate"
)

var (
	// ErrNoImage means the request carried no image.
	ErrNoImage = errors.New("no image uploaded")
	// ErrNoSelection means an image field was sent without a filename.
	ErrNoSelection = errors.New("no image selected")
	// ErrEmptyImage means the uploaded file had no content.
	ErrEmptyImage = errors.New("uploaded image is empty")
	// ErrNotFound means no recorded prediction has the requested id.
	ErrNotFound = errors.New("prediction not found")
	// ErrHistoryDisabled means the service was built without WithHistory.
	ErrHistoryDisabled = errors.New("prediction history is disabled")
)

// Publisher receives an event after every successful prediction.
type Publisher interface {
	Publish(event dto.PredictionEvent)
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithHistory records every prediction and its detections.
func WithHistory(predictionRepo repository.PredictionRepository, detectionRepo repository.DetectionRepository) Option {
	return func(s *Service) {
		s.predictionRepo = predictionRepo
		s.detectionRepo = detectionRepo
	}
}

// WithPublisher pushes every prediction to p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// Service runs the upload pipeline: save, detect, save the annotated
// result, build the display list, then record and publish.
type Service struct {
	store          *storage.FileStore
	detector       ai.Detector
	translations   *translate.Table
	predictionRepo repository.PredictionRepository
	detectionRepo  repository.DetectionRepository
	publisher      Publisher
	logger         *logger.Logger
	now            func() time.Time
}

// NewService creates a Service. History and publishing are off unless
// enabled through opts.
func NewService(store *storage.FileStore, detector ai.Detector, translations *translate.Table, logger *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		detector:     detector,
		translations: translations,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict stores the upload read from r, runs detection on it and returns
// the web paths of both images with the display list. On failure nothing
// stays on disk.
func (s *Service) Predict(ctx context.Context, originalFilename string, r io.Reader) (*dto.PredictResponse, error) {
	if r == nil {
		return nil, ErrNoImage
	}
	if originalFilename == "" {
		return nil, ErrNoSelection
	}

	upload, err := s.store.SaveUpload(originalFilename, r)
	if err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if upload.Size == 0 {
		s.discard(upload)
		return nil, ErrEmptyImage
	}

	inf, err := s.detector.Detect(ctx, upload.Path)
	if err != nil {
		s.discard(upload)
		return nil, fmt.Errorf("failed to run detection on %s: %w", upload.Name, err)
	}

	result, err := s.store.SaveResult(inf.Annotated)
	if err != nil {
		s.discard(upload)
		return nil, fmt.Errorf("failed to save result: %w", err)
	}

	resp := &dto.PredictResponse{
		UploadImage: upload.WebPath,
		ResultImage: result.WebPath,
		Detected:    DisplayList(inf, s.translations),
	}

	createdAt := s.now()
	resp.ID = s.record(originalFilename, upload, result, inf, createdAt)

	if s.publisher != nil {
		s.publisher.Publish(dto.PredictionEvent{PredictResponse: *resp, CreatedAt: createdAt})
	}

	s.logger.Info("Processed %s: %d detections, result %s", originalFilename, len(inf.Detections), result.Name)
	return resp, nil
}

// record writes the prediction to history and returns its id, or 0 when
// history is disabled or the write fails.
func (s *Service) record(originalFilename string, upload, result storage.StoredFile, inf *ai.Inference, createdAt time.Time) int64 {
	if s.predictionRepo == nil {
		return 0
	}

	id, err := s.predictionRepo.Insert(&model.Prediction{
		UploadFilename:   upload.Name,
		ResultFilename:   result.Name,
		OriginalFilename: originalFilename,
		FileSize:         upload.Size,
		CreatedAt:        createdAt,
	})
	if err != nil {
		s.logger.Error("Error saving prediction for %s: %v", upload.Name, err)
		return 0
	}

	if s.detectionRepo == nil || len(inf.Detections) == 0 {
		return id
	}

	detections := make([]model.Detection, 0, len(inf.Detections))
	for _, d := range inf.Detections {
		name := inf.ClassName(d.ClassIndex)
		detections = append(detections, model.Detection{
			PredictionID: id,
			ClassIndex:   d.ClassIndex,
			ClassName:    name,
			Label:        s.translations.Translate(name),
			Confidence:   d.Confidence,
			X:            d.Box.Min.X,
			Y:            d.Box.Min.Y,
			Width:        d.Box.Dx(),
			Height:       d.Box.Dy(),
		})
	}
	if err := s.detectionRepo.InsertBatch(detections); err != nil {
		s.logger.Error("Error saving detections for prediction %d: %v", id, err)
	}

	return id
}

// Delete removes a recorded prediction together with both of its images.
func (s *Service) Delete(id int64) error {
	if s.predictionRepo == nil {
		return ErrHistoryDisabled
	}

	p, err := s.predictionRepo.GetByID(id)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotFound
	}

	if err := s.store.Remove(s.store.Upload(p.UploadFilename)); err != nil {
		s.logger.Warning("Error removing upload %s: %v", p.UploadFilename, err)
	}
	if err := s.store.Remove(s.store.Result(p.ResultFilename)); err != nil {
		s.logger.Warning("Error removing result %s: %v", p.ResultFilename, err)
	}

	if err := s.predictionRepo.Delete(id); err != nil {
		return err
	}

	s.logger.Info("Deleted prediction %d", id)
	return nil
}

// Get returns a recorded prediction with all of its detections.
func (s *Service) Get(id int64) (*dto.PredictionDetail, error) {
	if s.predictionRepo == nil {
		return nil, ErrHistoryDisabled
	}

	p, err := s.predictionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}

	detections := []model.Detection{}
	if s.detectionRepo != nil {
		found, err := s.detectionRepo.GetByPredictionID(id)
		if err != nil {
			return nil, err
		}
		if found != nil {
			detections = found
		}
	}

	classes := []string{}
	seen := make(map[string]bool)
	for _, d := range detections {
		if !seen[d.ClassName] {
			seen[d.ClassName] = true
			classes = append(classes, d.ClassName)
		}
	}
	sort.Strings(classes)

	return &dto.PredictionDetail{
		Prediction: dto.PredictionInfo{
			ID:          p.ID,
			UploadImage: s.store.Upload(p.UploadFilename).WebPath,
			ResultImage: s.store.Result(p.ResultFilename).WebPath,
			Original:    p.OriginalFilename,
			Date:        p.CreatedAt,
			TimeOfDay:   p.CreatedAt,
			Classes:     classes,
		},
		Detections: detections,
	}, nil
}

// Classes returns every class name ever recorded, for filtering the history.
func (s *Service) Classes() ([]string, error) {
	if s.detectionRepo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.detectionRepo.GetAllClassNames()
}

// Clear removes every recorded prediction and the images they refer to, and
// returns how many predictions were removed.
func (s *Service) Clear() (int, error) {
	if s.predictionRepo == nil {
		return 0, ErrHistoryDisabled
	}

	predictions, err := s.predictionRepo.GetAll(nil)
	if err != nil {
		return 0, err
	}

	for _, p := range predictions {
		if err := s.store.Remove(s.store.Upload(p.UploadFilename)); err != nil {
			s.logger.Warning("Error removing upload %s: %v", p.UploadFilename, err)
		}
		if err := s.store.Remove(s.store.Result(p.ResultFilename)); err != nil {
			s.logger.Warning("Error removing result %s: %v", p.ResultFilename, err)
		}
	}

	if err := s.predictionRepo.DeleteAll(); err != nil {
		return 0, err
	}

	s.logger.Info("Cleared %d predictions", len(predictions))
	return len(predictions), nil
}

func (s *Service) discard(f storage.StoredFile) {
	if err := s.store.Remove(f); err != nil {
		s.logger.Warning("Error removing upload %s: %v", f.Name, err)
	}
}
