package onnx

import (
	"sort"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

type decodeParams struct {
	NumClasses int
	InputSize  int
	OrigWidth  int
	OrigHeight int
	Conf       float64
	Names      []string
}

// decodePredictions converts a YOLOv8-style output tensor, laid out as
// (4+numClasses) channels of numPredictions anchors, into detections in the
// original crop's pixel coordinates. Box channels are center-x, center-y,
// width, height in input pixels.
func decodePredictions(predictions []float32, p decodeParams) []types.Detection {
	n := numPredictions(p.InputSize)
	if len(predictions) < (4+p.NumClasses)*n {
		return nil
	}

	scaleX := float64(p.OrigWidth) / float64(p.InputSize)
	scaleY := float64(p.OrigHeight) / float64(p.InputSize)

	dets := make([]types.Detection, 0, 64)
	for i := 0; i < n; i++ {
		classID := -1
		best := float32(0)
		for c := 0; c < p.NumClasses; c++ {
			if score := predictions[(4+c)*n+i]; score > best {
				best = score
				classID = c
			}
		}
		if classID < 0 || float64(best) < p.Conf {
			continue
		}

		cx := float64(predictions[i])
		cy := float64(predictions[n+i])
		w := float64(predictions[2*n+i])
		h := float64(predictions[3*n+i])

		box := types.Box{
			X1: clampF((cx-w/2)*scaleX, 0, float64(p.OrigWidth)),
			Y1: clampF((cy-h/2)*scaleY, 0, float64(p.OrigHeight)),
			X2: clampF((cx+w/2)*scaleX, 0, float64(p.OrigWidth)),
			Y2: clampF((cy+h/2)*scaleY, 0, float64(p.OrigHeight)),
		}
		if box.Width() <= 0 || box.Height() <= 0 {
			continue
		}

		name := ""
		if classID < len(p.Names) {
			name = p.Names[classID]
		}
		dets = append(dets, types.Detection{
			ClassID:    classID,
			ClassName:  name,
			Confidence: float64(best),
			Box:        box,
		})
	}

	sort.Slice(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
	return dets
}

// nonMaxSuppression keeps the highest-confidence box of each overlapping
// same-class group. Input must be sorted descending by confidence.
func nonMaxSuppression(dets []types.Detection, iouThreshold float64) []types.Detection {
	keep := make([]types.Detection, 0, len(dets))
	for _, det := range dets {
		skip := false
		for _, kept := range keep {
			if det.ClassID != kept.ClassID {
				continue
			}
			if iou(det.Box, kept.Box) > iouThreshold {
				skip = true
				break
			}
		}
		if !skip {
			keep = append(keep, det)
		}
	}
	return keep
}

// iou computes the intersection-over-union of two boxes.
func iou(a, b types.Box) float64 {
	x1 := maxF(a.X1, b.X1)
	y1 := maxF(a.Y1, b.Y1)
	x2 := minF(a.X2, b.X2)
	y2 := minF(a.Y2, b.Y2)

	w := maxF(0, x2-x1)
	h := maxF(0, y2-y1)
	inter := w * h

	areaA := a.Width() * a.Height()
	areaB := b.Width() * b.Height()
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
