package predict

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"fooddetect/internal/config"
	"fooddetect/internal/dto"
	"fooddetect/internal/logger"
	"fooddetect/internal/repository/sqlite"
	"fooddetect/internal/service/ai"
	"fooddetect/internal/service/storage"
	"fooddetect/internal/translate"
)

// ========================================
// Test doubles and setup
// ========================================

var testClassNames = map[int]string{
	0: "rice",
	1: "Stir-fried carrots",
	2: "Stir fried carrots",
	3: "mystery_dish",
}

type fakeDetector struct {
	detections []ai.Detection
	err        error
	paths      []string
}

func (d *fakeDetector) Detect(ctx context.Context, imagePath string) (*ai.Inference, error) {
	d.paths = append(d.paths, imagePath)
	if d.err != nil {
		return nil, d.err
	}
	return &ai.Inference{
		Detections: d.detections,
		Annotated:  []byte("annotated-jpeg"),
		ClassNames: testClassNames,
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.PredictionEvent
}

func (p *recordingPublisher) Publish(event dto.PredictionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func setupService(t *testing.T, detector ai.Detector, opts ...Option) (*Service, *config.Config) {
	t.Helper()

	cfg := &config.Config{StaticDir: filepath.Join(t.TempDir(), "static")}
	store, err := storage.NewFileStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	return NewService(store, detector, translate.Default(), logger.NewNop(), opts...), cfg
}

func setupHistory(t *testing.T) (*sqlite.PredictionRepository, *sqlite.DetectionRepository) {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return sqlite.NewPredictionRepository(db), sqlite.NewDetectionRepository(db)
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", dir, err)
	}
	return len(entries)
}

func detection(class int, confidence float64) ai.Detection {
	return ai.Detection{ClassIndex: class, Confidence: confidence, Box: image.Rect(10, 20, 110, 220)}
}

// ========================================
// Display list
// ========================================

func TestDisplayList_NoDetectionsGivesSentinel(t *testing.T) {
	got := DisplayList(&ai.Inference{ClassNames: testClassNames}, translate.Default())

	if len(got) != 1 || got[0] != NoFoodDetected {
		t.Errorf("Expected [%q], got %v", NoFoodDetected, got)
	}
}

func TestDisplayList_DeduplicatesAndSorts(t *testing.T) {
	inf := &ai.Inference{
		ClassNames: testClassNames,
		Detections: []ai.Detection{
			detection(1, 0.874),
			detection(0, 0.9),
			detection(1, 0.871), // same text as the first once rounded
			detection(3, 0.5),
			detection(0, 0.9),
		},
	}

	got := DisplayList(inf, translate.Default())

	expected := []string{
		"Stir-fried carrots（炒紅蘿蔔） - confidence: 0.87",
		"mystery_dish（mystery_dish） - confidence: 0.50",
		"rice（米飯） - confidence: 0.90",
	}
	if len(got) != len(expected) {
		t.Fatalf("Expected %d entries, got %v", len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("entry %d = %q, expected %q", i, got[i], expected[i])
		}
	}
	if !sort.StringsAreSorted(got) {
		t.Errorf("Display list not sorted: %v", got)
	}
}

func TestDisplayList_SeparatorVariantsShareLabel(t *testing.T) {
	inf := &ai.Inference{
		ClassNames: testClassNames,
		Detections: []ai.Detection{detection(1, 0.8), detection(2, 0.8)},
	}

	got := DisplayList(inf, translate.Default())
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %v", got)
	}
	for _, entry := range got {
		if !strings.Contains(entry, "（炒紅蘿蔔）") {
			t.Errorf("Entry %q lacks the shared label", entry)
		}
	}
}

func TestDisplayList_UnknownIndex(t *testing.T) {
	inf := &ai.Inference{
		ClassNames: testClassNames,
		Detections: []ai.Detection{detection(42, 0.3)},
	}

	got := DisplayList(inf, translate.Default())
	if got[0] != "class_42（class_42） - confidence: 0.30" {
		t.Errorf("Unexpected entry %q", got[0])
	}
}

func TestFormatEntry_ConfidenceRoundTrip(t *testing.T) {
	for _, c := range []float64{0, 0.004, 0.255, 0.5, 0.876, 0.999, 1} {
		entry := FormatEntry("rice", "米飯", c)

		idx := strings.LastIndex(entry, ": ")
		parsed, err := strconv.ParseFloat(entry[idx+2:], 64)
		if err != nil {
			t.Fatalf("Failed to parse confidence from %q: %v", entry, err)
		}

		want, _ := strconv.ParseFloat(strconv.FormatFloat(c, 'f', 2, 64), 64)
		if math.Abs(parsed-want) > 1e-9 {
			t.Errorf("confidence %v: parsed %v, expected %v", c, parsed, want)
		}
	}
}

// ========================================
// Pipeline
// ========================================

func TestPredict_SavesBothImages(t *testing.T) {
	detector := &fakeDetector{detections: []ai.Detection{detection(0, 0.91)}}
	svc, cfg := setupService(t, detector)

	resp, err := svc.Predict(context.Background(), "lunch.PNG", strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if !strings.HasPrefix(resp.UploadImage, "/static/uploads/") || !strings.HasSuffix(resp.UploadImage, ".PNG") {
		t.Errorf("Unexpected upload path %q", resp.UploadImage)
	}
	if !strings.HasPrefix(resp.ResultImage, "/static/results/result_") || !strings.HasSuffix(resp.ResultImage, ".jpg") {
		t.Errorf("Unexpected result path %q", resp.ResultImage)
	}
	if len(resp.Detected) != 1 || resp.Detected[0] != "rice（米飯） - confidence: 0.91" {
		t.Errorf("Unexpected display list %v", resp.Detected)
	}
	if resp.ID != 0 {
		t.Errorf("Expected no id without history, got %d", resp.ID)
	}

	upload, err := os.ReadFile(filepath.Join(cfg.UploadDir(), filepath.Base(resp.UploadImage)))
	if err != nil || string(upload) != "image-bytes" {
		t.Errorf("Upload not stored correctly: %q, %v", upload, err)
	}
	result, err := os.ReadFile(filepath.Join(cfg.ResultDir(), filepath.Base(resp.ResultImage)))
	if err != nil || string(result) != "annotated-jpeg" {
		t.Errorf("Result not stored correctly: %q, %v", result, err)
	}

	if len(detector.paths) != 1 || filepath.Base(detector.paths[0]) != filepath.Base(resp.UploadImage) {
		t.Errorf("Detector ran on %v", detector.paths)
	}
}

func TestPredict_NoDetections(t *testing.T) {
	svc, _ := setupService(t, &fakeDetector{})

	resp, err := svc.Predict(context.Background(), "empty-plate.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(resp.Detected) != 1 || resp.Detected[0] != NoFoodDetected {
		t.Errorf("Expected sentinel, got %v", resp.Detected)
	}
}

func TestPredict_SameImageTwice(t *testing.T) {
	detector := &fakeDetector{detections: []ai.Detection{detection(1, 0.66), detection(0, 0.8)}}
	svc, _ := setupService(t, detector)

	first, err := svc.Predict(context.Background(), "meal.jpg", strings.NewReader("same"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	second, err := svc.Predict(context.Background(), "meal.jpg", strings.NewReader("same"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if first.UploadImage == second.UploadImage {
		t.Error("Uploads must not share a filename")
	}
	if first.ResultImage == second.ResultImage {
		t.Error("Results must not share a filename")
	}
	if strings.Join(first.Detected, "|") != strings.Join(second.Detected, "|") {
		t.Errorf("Display lists differ: %v vs %v", first.Detected, second.Detected)
	}
}

func TestPredict_InputErrors(t *testing.T) {
	svc, cfg := setupService(t, &fakeDetector{})

	if _, err := svc.Predict(context.Background(), "a.jpg", nil); !errors.Is(err, ErrNoImage) {
		t.Errorf("Expected ErrNoImage, got %v", err)
	}
	if _, err := svc.Predict(context.Background(), "", strings.NewReader("x")); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Expected ErrNoSelection, got %v", err)
	}
	if _, err := svc.Predict(context.Background(), "a.jpg", bytes.NewReader(nil)); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Expected ErrEmptyImage, got %v", err)
	}

	if n := countFiles(t, cfg.UploadDir()); n != 0 {
		t.Errorf("Expected no stored uploads, found %d", n)
	}
}

func TestPredict_DetectorFailureRemovesUpload(t *testing.T) {
	detectErr := errors.New("failed to decode image")
	svc, cfg := setupService(t, &fakeDetector{err: detectErr})

	_, err := svc.Predict(context.Background(), "corrupt.jpg", strings.NewReader("not an image"))
	if !errors.Is(err, detectErr) {
		t.Fatalf("Expected wrapped detector error, got %v", err)
	}

	if n := countFiles(t, cfg.UploadDir()); n != 0 {
		t.Errorf("Upload left behind after failure: %d files", n)
	}
	if n := countFiles(t, cfg.ResultDir()); n != 0 {
		t.Errorf("Result written after failure: %d files", n)
	}
}

func TestPredict_RecordsHistoryAndPublishes(t *testing.T) {
	predictionRepo, detectionRepo := setupHistory(t)
	publisher := &recordingPublisher{}
	detector := &fakeDetector{detections: []ai.Detection{detection(1, 0.75), detection(0, 0.5)}}

	svc, _ := setupService(t, detector, WithHistory(predictionRepo, detectionRepo), WithPublisher(publisher))
	fixed := time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	resp, err := svc.Predict(context.Background(), "dinner.jpg", strings.NewReader("12345"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if resp.ID == 0 {
		t.Fatal("Expected a history id")
	}

	p, err := predictionRepo.GetByID(resp.ID)
	if err != nil || p == nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if p.OriginalFilename != "dinner.jpg" || p.FileSize != 5 {
		t.Errorf("Unexpected prediction row %+v", p)
	}
	if "/static/uploads/"+p.UploadFilename != resp.UploadImage {
		t.Errorf("Stored upload %q does not match %q", p.UploadFilename, resp.UploadImage)
	}

	stored, err := detectionRepo.GetByPredictionID(resp.ID)
	if err != nil {
		t.Fatalf("GetByPredictionID failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 stored detections, got %d", len(stored))
	}
	labels := map[string]string{}
	for _, d := range stored {
		labels[d.ClassName] = d.Label
		if d.Width != 100 || d.Height != 200 {
			t.Errorf("Unexpected box for %s: %dx%d", d.ClassName, d.Width, d.Height)
		}
	}
	if labels["Stir-fried carrots"] != "炒紅蘿蔔" || labels["rice"] != "米飯" {
		t.Errorf("Unexpected stored labels %v", labels)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.ID != resp.ID || !event.CreatedAt.Equal(fixed) || len(event.Detected) != 2 {
		t.Errorf("Unexpected event %+v", event)
	}
}

func TestDelete(t *testing.T) {
	predictionRepo, detectionRepo := setupHistory(t)
	detector := &fakeDetector{detections: []ai.Detection{detection(0, 0.5)}}
	svc, cfg := setupService(t, detector, WithHistory(predictionRepo, detectionRepo))

	resp, err := svc.Predict(context.Background(), "a.jpg", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if err := svc.Delete(resp.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n := countFiles(t, cfg.UploadDir()) + countFiles(t, cfg.ResultDir()); n != 0 {
		t.Errorf("Expected images removed, %d left", n)
	}
	if p, _ := predictionRepo.GetByID(resp.ID); p != nil {
		t.Error("Expected prediction row removed")
	}

	if err := svc.Delete(resp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDelete_WithoutHistory(t *testing.T) {
	svc, _ := setupService(t, &fakeDetector{})

	if err := svc.Delete(1); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Expected ErrHistoryDisabled, got %v", err)
	}
}

func TestGet(t *testing.T) {
	predictionRepo, detectionRepo := setupHistory(t)
	detector := &fakeDetector{detections: []ai.Detection{detection(0, 0.9), detection(1, 0.6), detection(0, 0.4)}}
	svc, _ := setupService(t, detector, WithHistory(predictionRepo, detectionRepo))

	resp, err := svc.Predict(context.Background(), "lunch.jpg", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	detail, err := svc.Get(resp.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if detail.Prediction.ID != resp.ID || detail.Prediction.Original != "lunch.jpg" {
		t.Errorf("Unexpected prediction %+v", detail.Prediction)
	}
	if detail.Prediction.UploadImage != resp.UploadImage || detail.Prediction.ResultImage != resp.ResultImage {
		t.Errorf("Paths differ from the predict response: %+v", detail.Prediction)
	}
	if len(detail.Detections) != 3 {
		t.Fatalf("Expected 3 detections, got %d", len(detail.Detections))
	}
	if detail.Detections[1].ClassName != "Stir-fried carrots" || detail.Detections[1].Label != "炒紅蘿蔔" {
		t.Errorf("Unexpected detection %+v", detail.Detections[1])
	}
	want := []string{"Stir-fried carrots", "rice"}
	if strings.Join(detail.Prediction.Classes, "|") != strings.Join(want, "|") {
		t.Errorf("Expected classes %v, got %v", want, detail.Prediction.Classes)
	}

	if _, err := svc.Get(resp.ID + 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGet_NoDetections(t *testing.T) {
	predictionRepo, detectionRepo := setupHistory(t)
	svc, _ := setupService(t, &fakeDetector{}, WithHistory(predictionRepo, detectionRepo))

	resp, err := svc.Predict(context.Background(), "empty.jpg", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	detail, err := svc.Get(resp.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if detail.Detections == nil || len(detail.Detections) != 0 || len(detail.Prediction.Classes) != 0 {
		t.Errorf("Expected empty, non-nil detections, got %+v", detail)
	}
}

func TestClasses(t *testing.T) {
	predictionRepo, detectionRepo := setupHistory(t)
	detector := &fakeDetector{detections: []ai.Detection{detection(3, 0.7), detection(0, 0.9)}}
	svc, _ := setupService(t, detector, WithHistory(predictionRepo, detectionRepo))

	for i := 0; i < 2; i++ {
		if _, err := svc.Predict(context.Background(), "a.jpg", strings.NewReader("abc")); err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
	}

	classes, err := svc.Classes()
	if err != nil {
		t.Fatalf("Classes failed: %v", err)
	}
	if strings.Join(classes, "|") != "mystery_dish|rice" {
		t.Errorf("Unexpected classes %v", classes)
	}
}

func TestClear(t *testing.T) {
	predictionRepo, detectionRepo := setupHistory(t)
	detector := &fakeDetector{detections: []ai.Detection{detection(0, 0.9)}}
	svc, cfg := setupService(t, detector, WithHistory(predictionRepo, detectionRepo))

	for i := 0; i < 3; i++ {
		if _, err := svc.Predict(context.Background(), "a.jpg", strings.NewReader("abc")); err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
	}

	cleared, err := svc.Clear()
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 3 {
		t.Errorf("Expected 3 cleared, got %d", cleared)
	}
	if n := countFiles(t, cfg.UploadDir()) + countFiles(t, cfg.ResultDir()); n != 0 {
		t.Errorf("Expected images removed, %d left", n)
	}
	if total, _ := predictionRepo.GetTotalCount(nil); total != 0 {
		t.Errorf("Expected empty history, %d rows left", total)
	}
	if classes, _ := svc.Classes(); len(classes) != 0 {
		t.Errorf("Expected detections removed, got classes %v", classes)
	}
}

func TestHistoryReads_WithoutHistory(t *testing.T) {
	svc, _ := setupService(t, &fakeDetector{})

	if _, err := svc.Get(1); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Get: expected ErrHistoryDisabled, got %v", err)
	}
	if _, err := svc.Classes(); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Classes: expected ErrHistoryDisabled, got %v", err)
	}
	if _, err := svc.Clear(); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Clear: expected ErrHistoryDisabled, got %v", err)
	}
}
