// Package inference runs a detector over generated crops and remaps each
// crop's detections out of crop-local coordinates.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/detector"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/tiling"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

// Options controls a batch inference run.
type Options struct {
	detector.Options

	// ResizeResults scales remapped detections from canvas coordinates into
	// source-image coordinates. When false, ScaledDetections stay in
	// resized-canvas coordinates; callers must track which space they are
	// in.
	ResizeResults bool

	// Workers bounds concurrent inference calls in RunParallel. Values
	// below 1 default to runtime.NumCPU().
	Workers int
}

// Run invokes the detector on every crop in index order, storing crop-local
// detections and their remapped counterparts on each record. A crop whose
// inference fails gets its Err set and is skipped; the batch continues.
// The only returned error is context cancellation, checked between crops.
func Run(ctx context.Context, crops []*tiling.Crop, opts Options, det detector.Detector) error {
	for _, crop := range crops {
		if err := ctx.Err(); err != nil {
			return err
		}
		inferOne(ctx, crop, opts, det)
	}
	return nil
}

// RunParallel behaves like Run but distributes crops over a bounded worker
// pool. Crops share only read-only image references, so completion order
// does not matter; results land on each crop's own record.
func RunParallel(ctx context.Context, crops []*tiling.Crop, opts Options, det detector.Detector) error {
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > len(crops) {
		workers = len(crops)
	}
	if workers <= 1 {
		return Run(ctx, crops, opts, det)
	}

	jobs := make(chan *tiling.Crop)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for crop := range jobs {
				inferOne(ctx, crop, opts, det)
			}
		}()
	}

	var err error
dispatch:
	for _, crop := range crops {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		case jobs <- crop:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

func inferOne(ctx context.Context, crop *tiling.Crop, opts Options, det detector.Detector) {
	dets, err := det.Infer(ctx, crop.Pixels, opts.Options)
	if err != nil {
		crop.Err = fmt.Errorf("crop %d: %w", crop.Index, err)
		crop.Detections = nil
		crop.ScaledDetections = nil
		slog.Warn("crop inference failed", "crop", crop.Index, "error", err)
		return
	}
	crop.Err = nil
	crop.Detections = dets
	crop.ScaledDetections = Remap(dets, crop, opts.ResizeResults)
}

// Remap translates crop-local detections by the crop's canvas offset and,
// when resizeResults is set, rescales them from canvas into source-image
// coordinates.
func Remap(dets []types.Detection, crop *tiling.Crop, resizeResults bool) []types.Detection {
	if dets == nil {
		return nil
	}

	sx, sy := 1.0, 1.0
	if resizeResults {
		srcBounds := crop.Source.Bounds()
		canvasBounds := crop.Canvas.Bounds()
		sx = float64(srcBounds.Dx()) / float64(canvasBounds.Dx())
		sy = float64(srcBounds.Dy()) / float64(canvasBounds.Dy())
	}

	out := make([]types.Detection, len(dets))
	for i, d := range dets {
		d = d.Translate(float64(crop.X), float64(crop.Y))
		if resizeResults {
			d = d.Scale(sx, sy)
		}
		out[i] = d
	}
	return out
}

// Collect flattens remapped detections from all crops, skipping failed
// records. No cross-crop fusion is applied; suppressing duplicates that
// straddle overlapping crops is the caller's concern.
func Collect(crops []*tiling.Crop) []types.Detection {
	var all []types.Detection
	for _, crop := range crops {
		if crop.Err != nil {
			continue
		}
		all = append(all, crop.ScaledDetections...)
	}
	return all
}

// Failed returns the crops whose inference call failed.
func Failed(crops []*tiling.Crop) []*tiling.Crop {
	var failed []*tiling.Crop
	for _, crop := range crops {
		if crop.Err != nil {
			failed = append(failed, crop)
		}
	}
	return failed
}
