// Package detector defines the capability a detection backend must provide.
package detector

import (
	"context"
	"image"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

// Options are the per-call inference parameters.
type Options struct {
	// ImageSize is the inference input size hint in pixels (long side).
	// Backends with a fixed input tensor may consume this at construction
	// instead and ignore it here.
	ImageSize int
	// Conf is the minimum confidence for a detection to be reported, in [0, 1].
	Conf float64
	// IoU is the intersection-over-union threshold the backend uses for its
	// own per-call non-maximum suppression, in [0, 1].
	IoU float64
	// Segment requests polygon masks in addition to boxes. Backends without
	// segmentation support return boxes only.
	Segment bool
}

// Detector is an object detection backend. Implementations must be safe for
// concurrent use: the inference runner may call Infer from multiple
// goroutines.
type Detector interface {
	// Infer runs detection on a single image and returns detections with
	// geometry in that image's own pixel coordinates.
	Infer(ctx context.Context, img image.Image, opts Options) ([]types.Detection, error)

	// ClassNames maps class ids to human-readable names.
	ClassNames() map[int]string
}
