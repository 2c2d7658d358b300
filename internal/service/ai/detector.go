package ai

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"os"
	"strings"
)

// Detection is one bounding box predicted by the model.
type Detection struct {
	ClassIndex int             `json:"class"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Inference is the outcome of running the model on one image.
type Inference struct {
	Detections []Detection    `json:"detections"`
	Annotated  []byte         `json:"annotated"` // JPEG with boxes drawn
	ClassNames map[int]string `json:"classNames"`
}

// ClassName resolves a class index to its canonical name, trimmed.
// Indexes the model does not name resolve to "class_<n>".
func (inf *Inference) ClassName(index int) string {
	if name, ok := inf.ClassNames[index]; ok {
		return strings.TrimSpace(name)
	}
	return fmt.Sprintf("class_%d", index)
}

// Detector runs object detection on an image stored on disk.
type Detector interface {
	Detect(ctx context.Context, imagePath string) (*Inference, error)
}

// LoadClassNames reads one class name per line; the n-th non-blank line is
// class n.
func LoadClassNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open class names: %w", err)
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class names: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no class names in %s", path)
	}

	return names, nil
}

// NamesByIndex turns an ordered list of names into an index map.
func NamesByIndex(names []string) map[int]string {
	m := make(map[int]string, len(names))
	for i, name := range names {
		m[i] = name
	}
	return m
}
