// Package tiling splits an image into a grid of overlapping fixed-size crops.
//
// The image is first resampled to a canvas that fits the crop grid exactly at
// the requested overlap, then crops are cut from that canvas in row-major
// order. Each crop records its offset within the canvas so detections found
// inside it can later be remapped into canvas or source coordinates.
package tiling

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

// Options controls crop placement.
type Options struct {
	// ShapeX and ShapeY are the crop dimensions in pixels.
	ShapeX int
	ShapeY int
	// OverlapX and OverlapY are the overlap between neighbouring crops as a
	// percentage of the crop dimension, in [0, 100).
	OverlapX float64
	OverlapY float64
	// Observer, when set, is invoked with the final crop list after
	// generation. Used for visualization; it does not affect the result.
	Observer Observer
}

// Observer receives the generated crops for inspection.
type Observer func(crops []*Crop)

// DefaultOptions mirrors the usual operating point for patch-based
// detection: 700px crops with 25% overlap on both axes.
func DefaultOptions() Options {
	return Options{
		ShapeX:   700,
		ShapeY:   700,
		OverlapX: 25,
		OverlapY: 25,
	}
}

// Crop is one tile of the grid. Source and Canvas are shared read-only
// across all crops of a run; Pixels is an independent copy owned by the
// crop, so downstream mutation cannot corrupt neighbouring tiles.
type Crop struct {
	// Source is the original, unresized input image.
	Source image.Image
	// Canvas is the image resampled to the exact tiling grid.
	Canvas image.Image
	// Pixels is this crop's ShapeX×ShapeY block cut from Canvas.
	Pixels *image.NRGBA
	// Index is the 1-based tile number in row-major generation order.
	Index int
	// X and Y are the crop's top-left offset within Canvas.
	X int
	Y int

	// Detections holds the detector output in crop-local coordinates.
	// Empty until inference runs.
	Detections []types.Detection
	// ScaledDetections holds the same detections remapped by the inference
	// runner: source-image coordinates when ResizeResults is enabled,
	// canvas coordinates otherwise.
	ScaledDetections []types.Detection
	// Err marks a per-crop inference failure. Detections stay empty when
	// set; sibling crops are unaffected.
	Err error
}

// Grid describes crop placement for one image/options pair.
type Grid struct {
	// XSteps and YSteps are the number of crops per row and column.
	XSteps int
	YSteps int
	// Width and Height are the canvas dimensions that fit the grid exactly.
	Width  int
	Height int
	// ShapeX and ShapeY are the crop dimensions the grid was planned for.
	ShapeX int
	ShapeY int
	// CrossX and CrossY are the step multipliers: the fraction of a crop
	// dimension advanced per step.
	CrossX float64
	CrossY float64
}

// Count returns the total number of crops in the grid.
func (g Grid) Count() int {
	return g.XSteps * g.YSteps
}

// Origin returns the top-left canvas offset of the crop at (row, col).
func (g Grid) Origin(row, col int) (int, int) {
	x := int(float64(g.ShapeX) * float64(col) * g.CrossX)
	y := int(float64(g.ShapeY) * float64(row) * g.CrossY)
	return x, y
}

func validate(width, height int, opts Options) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("empty input image (%dx%d)", width, height)
	}
	if opts.ShapeX < 1 || opts.ShapeY < 1 {
		return fmt.Errorf("crop shape must be positive, got %dx%d", opts.ShapeX, opts.ShapeY)
	}
	if opts.OverlapX < 0 || opts.OverlapX >= 100 {
		return fmt.Errorf("overlap_x must be in [0, 100), got %v", opts.OverlapX)
	}
	if opts.OverlapY < 0 || opts.OverlapY >= 100 {
		return fmt.Errorf("overlap_y must be in [0, 100), got %v", opts.OverlapY)
	}
	return nil
}

// PlanGrid computes crop counts and the exact canvas size for an image of
// the given dimensions. The step count along each axis is the minimum number
// of crops that covers the source at the requested stride, never less
// than one, so an image smaller than a single crop still yields one crop on
// an upsampled canvas.
func PlanGrid(width, height int, opts Options) (Grid, error) {
	if err := validate(width, height, opts); err != nil {
		return Grid{}, err
	}

	crossX := 1 - opts.OverlapX/100
	crossY := 1 - opts.OverlapY/100

	xSteps := int(float64(width-opts.ShapeX)/(float64(opts.ShapeX)*crossX)) + 1
	ySteps := int(float64(height-opts.ShapeY)/(float64(opts.ShapeY)*crossY)) + 1
	if xSteps < 1 {
		xSteps = 1
	}
	if ySteps < 1 {
		ySteps = 1
	}

	newW := int(math.Round(float64(xSteps-1)*float64(opts.ShapeX)*crossX + float64(opts.ShapeX)))
	newH := int(math.Round(float64(ySteps-1)*float64(opts.ShapeY)*crossY + float64(opts.ShapeY)))

	return Grid{
		XSteps: xSteps,
		YSteps: ySteps,
		Width:  newW,
		Height: newH,
		ShapeX: opts.ShapeX,
		ShapeY: opts.ShapeY,
		CrossX: crossX,
		CrossY: crossY,
	}, nil
}

// Generate produces the full crop set for an image. The canvas is resampled
// once with a Lanczos filter; crop placement is deterministic for identical
// input and options.
func Generate(img image.Image, opts Options) ([]*Crop, error) {
	if img == nil {
		return nil, fmt.Errorf("nil input image")
	}
	bounds := img.Bounds()
	grid, err := PlanGrid(bounds.Dx(), bounds.Dy(), opts)
	if err != nil {
		return nil, err
	}

	canvas := resizeCanvas(img, grid)

	crops := make([]*Crop, 0, grid.Count())
	count := 0
	for i := 0; i < grid.YSteps; i++ {
		for j := 0; j < grid.XSteps; j++ {
			x, y := grid.Origin(i, j)

			// Residual check; unreachable when the canvas formula holds,
			// kept as a safety net for rounding edge cases.
			if x+opts.ShapeX > grid.Width {
				slog.Warn("crop exceeds canvas on x-axis, skipping",
					"x", x, "shape_x", opts.ShapeX, "canvas_width", grid.Width)
				continue
			}
			if y+opts.ShapeY > grid.Height {
				slog.Warn("crop exceeds canvas on y-axis, skipping",
					"y", y, "shape_y", opts.ShapeY, "canvas_height", grid.Height)
				continue
			}

			// imaging.Crop returns a fresh NRGBA, so the block is owned by
			// this crop.
			block := imaging.Crop(canvas, image.Rect(x, y, x+opts.ShapeX, y+opts.ShapeY))

			count++
			crops = append(crops, &Crop{
				Source: img,
				Canvas: canvas,
				Pixels: block,
				Index:  count,
				X:      x,
				Y:      y,
			})
		}
	}

	if opts.Observer != nil {
		opts.Observer(crops)
	}

	return crops, nil
}

// resizeCanvas resamples the image to the grid's canvas dimensions. A
// same-size resample is skipped apart from normalizing to NRGBA.
func resizeCanvas(img image.Image, grid Grid) *image.NRGBA {
	bounds := img.Bounds()
	if bounds.Dx() == grid.Width && bounds.Dy() == grid.Height {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, grid.Width, grid.Height, imaging.Lanczos)
}
