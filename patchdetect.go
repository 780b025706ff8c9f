// Package patchdetect provides patch-based ("sliding-window") object
// detection for large images.
//
// Detectors operate at a fixed input resolution and lose small objects on
// very large images. This package trades one large inference for many
// smaller ones: the input is resampled to a canvas that tiles exactly at a
// requested overlap, each crop is run through a detector independently, and
// every crop's detections are remapped back into a shared coordinate space.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		patchdetect "github.com/curtis18/YOLO-Patch-Based-Inference"
//		"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/onnx"
//		"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/processing"
//	)
//
//	func main() {
//		if err := onnx.Initialize(""); err != nil {
//			log.Fatal(err)
//		}
//		det, err := onnx.New(onnx.Config{
//			ModelPath:  "yolov8m.onnx",
//			ClassNames: []string{"person", "car"},
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer det.Close()
//
//		img, err := processing.NewProcessor().LoadImage("large.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		pipeline := patchdetect.New(det)
//		pipeline.Inference.Conf = 0.5
//		pipeline.Inference.ResizeResults = true
//
//		crops, err := pipeline.Detect(context.Background(), img)
//		if err != nil {
//			log.Fatal(err)
//		}
//		for _, crop := range crops {
//			log.Printf("crop %d: %d detections", crop.Index, len(crop.ScaledDetections))
//		}
//	}
//
// The package consists of three main components:
//
// 1. Tiling (pkg/tiling): deterministic overlap-grid crop generation
// 2. Inference (pkg/inference): per-crop detector runs and coordinate remapping
// 3. Backends (pkg/onnx, pkg/ollama): detector implementations behind pkg/detector
//
// Cross-crop result fusion (e.g. suppressing duplicates across overlapping
// crops) is intentionally left to downstream consumers.
package patchdetect

import (
	"context"
	"image"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/detector"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/inference"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/tiling"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

// Version of the patchdetect library
const Version = "1.0.0"

// Pipeline bundles tiling and inference options around a detector.
type Pipeline struct {
	Tiling    tiling.Options
	Inference inference.Options
	// Parallel switches Detect from sequential to bounded-parallel crop
	// inference.
	Parallel bool

	detector detector.Detector
}

// New creates a Pipeline with default tiling and inference options.
func New(det detector.Detector) *Pipeline {
	return &Pipeline{
		Tiling: tiling.DefaultOptions(),
		Inference: inference.Options{
			Options: detector.Options{
				ImageSize: 640,
				Conf:      0.5,
				IoU:       0.7,
			},
		},
		detector: det,
	}
}

// Detect runs the full pipeline: generates crops, infers each one, and
// returns the crop records with detections attached. Per-crop inference
// failures are recorded on the crop, not returned; the returned error is
// only a configuration error or context cancellation.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) ([]*tiling.Crop, error) {
	crops, err := tiling.Generate(img, p.Tiling)
	if err != nil {
		return nil, err
	}

	run := inference.Run
	if p.Parallel {
		run = inference.RunParallel
	}
	if err := run(ctx, crops, p.Inference, p.detector); err != nil {
		return nil, err
	}
	return crops, nil
}

// DetectAll is a convenience wrapper that runs Detect and flattens the
// remapped detections from every successful crop.
func (p *Pipeline) DetectAll(ctx context.Context, img image.Image) ([]types.Detection, error) {
	crops, err := p.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	return inference.Collect(crops), nil
}

// ClassNames exposes the detector's class id mapping.
func (p *Pipeline) ClassNames() map[int]string {
	return p.detector.ClassNames()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
