// Package yolo runs a YOLOv8 ONNX model through OpenCV's DNN module.
package yolo

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"

	"fooddetect/internal/config"
	"fooddetect/internal/logger"
	"fooddetect/internal/service/ai"

	"gocv.io/x/gocv"
)

const (
	inputSize = 640
	scale     = 1.0 / 255.0
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	textColor = color.RGBA{R: 0, G: 0, B: 0, A: 0}
)

// worker owns one network instance. gocv.Net is not safe for concurrent use.
type worker struct {
	net         gocv.Net
	outputNames []string
}

// Detector is a pool of identical networks. Each Detect call borrows one
// network for its whole duration.
type Detector struct {
	workers    chan *worker
	all        []*worker
	params     gocv.ImageToBlobParams
	classNames map[int]string
	confidence float32
	nms        float32
	logger     *logger.Logger
}

// NewDetector loads cfg.DetectorWorkers copies of the model.
func NewDetector(cfg *config.Config, logger *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	names, err := ai.LoadClassNames(cfg.ClassNamesPath)
	if err != nil {
		return nil, err
	}

	count := cfg.DetectorWorkers
	if count < 1 {
		count = 1
	}

	d := &Detector{
		workers:    make(chan *worker, count),
		classNames: ai.NamesByIndex(names),
		confidence: float32(cfg.ConfidenceThreshold),
		nms:        float32(cfg.NMSThreshold),
		logger:     logger,
		params: gocv.NewImageToBlobParams(
			scale,
			image.Pt(inputSize, inputSize),
			gocv.NewScalar(0, 0, 0, 0),
			true,
			gocv.MatTypeCV32F,
			gocv.DataLayoutNCHW,
			gocv.PaddingModeLetterbox,
			gocv.NewScalar(114, 114, 114, 0),
		),
	}

	for i := 0; i < count; i++ {
		w, err := loadWorker(cfg.ModelPath)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.all = append(d.all, w)
		d.workers <- w
	}

	logger.Info("Loaded model %s (%d classes, %d workers)", cfg.ModelPath, len(names), count)
	return d, nil
}

func loadWorker(modelPath string) (*worker, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	outputNames := getOutputNames(&net)
	if len(outputNames) == 0 {
		net.Close()
		return nil, fmt.Errorf("network %s has no output layers", modelPath)
	}

	return &worker{net: net, outputNames: outputNames}, nil
}

func getOutputNames(net *gocv.Net) []string {
	var outputLayers []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		if name := layer.GetName(); name != "_input" {
			outputLayers = append(outputLayers, name)
		}
	}
	return outputLayers
}

// Detect runs the model on the image at imagePath and returns the kept
// detections plus a JPEG rendering of them.
func (d *Detector) Detect(ctx context.Context, imagePath string) (*ai.Inference, error) {
	var w *worker
	select {
	case w = <-d.workers:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { d.workers <- w }()

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("failed to decode image %s", imagePath)
	}
	defer img.Close()

	detections, err := d.run(w, &img)
	if err != nil {
		return nil, err
	}

	annotated, err := d.draw(&img, detections)
	if err != nil {
		return nil, err
	}

	return &ai.Inference{
		Detections: detections,
		Annotated:  annotated,
		ClassNames: d.classNames,
	}, nil
}

func (d *Detector) run(w *worker, img *gocv.Mat) ([]ai.Detection, error) {
	blob := gocv.BlobFromImageWithParams(*img, d.params)
	defer blob.Close()

	w.net.SetInput(blob, "")
	outs := w.net.ForwardLayers(w.outputNames)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()
	if len(outs) == 0 {
		return nil, fmt.Errorf("network produced no output")
	}

	data, err := outs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	boxes, scores, classIDs, err := ai.DecodeYOLOv8(data, outs[0].Size(), d.confidence)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return []ai.Detection{}, nil
	}

	imageBoxes := d.params.BlobRectsToImageRects(boxes, image.Pt(img.Cols(), img.Rows()))
	keep := ai.SuppressPerClass(imageBoxes, scores, classIDs, d.confidence, d.nms, gocv.NMSBoxes)

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	detections := make([]ai.Detection, 0, len(keep))
	for _, idx := range keep {
		detections = append(detections, ai.Detection{
			ClassIndex: classIDs[idx],
			Confidence: float64(scores[idx]),
			Box:        imageBoxes[idx].Intersect(bounds),
		})
	}

	return detections, nil
}

func (d *Detector) draw(img *gocv.Mat, detections []ai.Detection) ([]byte, error) {
	for _, det := range detections {
		gocv.Rectangle(img, det.Box, boxColor, 2)

		name, ok := d.classNames[det.ClassIndex]
		if !ok {
			name = fmt.Sprintf("class_%d", det.ClassIndex)
		}
		label := fmt.Sprintf("%s %.2f", name, det.Confidence)

		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 1)
		top := det.Box.Min.Y - size.Y - 6
		if top < 0 {
			top = det.Box.Min.Y
		}
		background := image.Rect(det.Box.Min.X, top, det.Box.Min.X+size.X+4, top+size.Y+6)
		gocv.Rectangle(img, background, boxColor, -1)
		gocv.PutText(img, label, image.Pt(background.Min.X+2, background.Max.Y-3), gocv.FontHersheySimplex, 0.5, textColor, 1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result image: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// Close releases every network. It must not race with Detect.
func (d *Detector) Close() {
	for _, w := range d.all {
		w.net.Close()
	}
	d.all = nil
}
