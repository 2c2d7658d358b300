package ai

import (
	"fmt"
	"image"
)

// DecodeYOLOv8 reads a raw YOLOv8 detection head of shape [1, 4+nc, n]
// (attribute-major: cx, cy, w, h, then one score per class) and returns the
// candidates whose best class score reaches threshold. Boxes are in the
// coordinate space of the network input.
func DecodeYOLOv8(data []float32, dims []int, threshold float32) ([]image.Rectangle, []float32, []int, error) {
	if len(dims) != 3 || dims[0] != 1 {
		return nil, nil, nil, fmt.Errorf("unexpected output shape %v", dims)
	}

	attrs, count := dims[1], dims[2]
	if attrs <= 4 {
		return nil, nil, nil, fmt.Errorf("output has no class scores: shape %v", dims)
	}
	if len(data) < attrs*count {
		return nil, nil, nil, fmt.Errorf("output has %d values, shape %v needs %d", len(data), dims, attrs*count)
	}

	var (
		boxes    []image.Rectangle
		scores   []float32
		classIDs []int
	)

	at := func(attr, i int) float32 { return data[attr*count+i] }

	for i := 0; i < count; i++ {
		classID, best := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if s := at(c, i); classID < 0 || s > best {
				classID, best = c-4, s
			}
		}
		if best < threshold {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		boxes = append(boxes, image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		))
		scores = append(scores, best)
		classIDs = append(classIDs, classID)
	}

	return boxes, scores, classIDs, nil
}

// NMSFunc has the shape of gocv.NMSBoxes: it returns the indices of the
// boxes kept after non-maximum suppression.
type NMSFunc func(boxes []image.Rectangle, scores []float32, scoreThreshold, nmsThreshold float32) []int

// SuppressPerClass runs nms once with every class moved to its own region of
// the plane, so boxes only suppress boxes of the same class. Two classes
// predicted on one region are both kept.
func SuppressPerClass(boxes []image.Rectangle, scores []float32, classIDs []int,
	scoreThreshold, nmsThreshold float32, nms NMSFunc) []int {
	if len(boxes) == 0 {
		return nil
	}

	offset := 1
	for _, b := range boxes {
		if b.Max.X+1 > offset {
			offset = b.Max.X + 1
		}
		if b.Max.Y+1 > offset {
			offset = b.Max.Y + 1
		}
	}

	shifted := make([]image.Rectangle, len(boxes))
	for i, b := range boxes {
		d := classIDs[i] * offset
		shifted[i] = b.Add(image.Pt(d, d))
	}

	return nms(shifted, scores, scoreThreshold, nmsThreshold)
}
