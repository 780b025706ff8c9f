package tiling

import (
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a simple gradient test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func TestPlanGridNoOverlap(t *testing.T) {
	grid, err := PlanGrid(1000, 1000, Options{ShapeX: 500, ShapeY: 500})
	if err != nil {
		t.Fatalf("PlanGrid failed: %v", err)
	}

	if grid.XSteps != 2 || grid.YSteps != 2 {
		t.Errorf("expected 2x2 grid, got %dx%d", grid.XSteps, grid.YSteps)
	}
	if grid.Width != 1000 || grid.Height != 1000 {
		t.Errorf("expected 1000x1000 canvas, got %dx%d", grid.Width, grid.Height)
	}
	if grid.Count() != 4 {
		t.Errorf("expected 4 crops, got %d", grid.Count())
	}
}

func TestPlanGridWithOverlap(t *testing.T) {
	// 50% overlap halves the stride: 3 steps of 250px cover 1000px exactly
	grid, err := PlanGrid(1000, 1000, Options{ShapeX: 500, ShapeY: 500, OverlapX: 50, OverlapY: 50})
	if err != nil {
		t.Fatalf("PlanGrid failed: %v", err)
	}

	if grid.XSteps != 3 || grid.YSteps != 3 {
		t.Errorf("expected 3x3 grid, got %dx%d", grid.XSteps, grid.YSteps)
	}
	if grid.Width != 1000 || grid.Height != 1000 {
		t.Errorf("expected 1000x1000 canvas, got %dx%d", grid.Width, grid.Height)
	}
}

// The grid records the crop shape it was planned for, so origins can be
// computed from the grid alone.
func TestGridOriginSelfContained(t *testing.T) {
	grid, err := PlanGrid(1000, 1000, Options{ShapeX: 500, ShapeY: 500, OverlapX: 50, OverlapY: 50})
	if err != nil {
		t.Fatalf("PlanGrid failed: %v", err)
	}

	if grid.ShapeX != 500 || grid.ShapeY != 500 {
		t.Fatalf("expected grid to carry 500x500 shape, got %dx%d", grid.ShapeX, grid.ShapeY)
	}
	wantX := []int{0, 250, 500}
	for col, want := range wantX {
		x, y := grid.Origin(1, col)
		if x != want || y != 250 {
			t.Errorf("Origin(1,%d): expected (%d,250), got (%d,%d)", col, want, x, y)
		}
	}
}

// Regression fixture: 1000px source, 700px crops, 25% overlap. The step
// formula yields a single crop per axis on a 700x700 canvas, which is
// smaller than the source.
func TestPlanGridRegressionFixture(t *testing.T) {
	grid, err := PlanGrid(1000, 1000, Options{ShapeX: 700, ShapeY: 700, OverlapX: 25, OverlapY: 25})
	if err != nil {
		t.Fatalf("PlanGrid failed: %v", err)
	}

	if grid.XSteps != 1 || grid.YSteps != 1 {
		t.Errorf("expected 1x1 grid, got %dx%d", grid.XSteps, grid.YSteps)
	}
	if grid.Width != 700 || grid.Height != 700 {
		t.Errorf("expected 700x700 canvas, got %dx%d", grid.Width, grid.Height)
	}
	if grid.CrossX != 0.75 || grid.CrossY != 0.75 {
		t.Errorf("expected 0.75 step multipliers, got %v/%v", grid.CrossX, grid.CrossY)
	}
}

func TestPlanGridValidation(t *testing.T) {
	cases := []struct {
		name          string
		width, height int
		opts          Options
	}{
		{"zero width", 0, 100, Options{ShapeX: 50, ShapeY: 50}},
		{"zero height", 100, 0, Options{ShapeX: 50, ShapeY: 50}},
		{"zero shape x", 100, 100, Options{ShapeX: 0, ShapeY: 50}},
		{"negative shape y", 100, 100, Options{ShapeX: 50, ShapeY: -1}},
		{"overlap x 100", 100, 100, Options{ShapeX: 50, ShapeY: 50, OverlapX: 100}},
		{"overlap y above 100", 100, 100, Options{ShapeX: 50, ShapeY: 50, OverlapY: 150}},
		{"negative overlap", 100, 100, Options{ShapeX: 50, ShapeY: 50, OverlapX: -5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PlanGrid(tc.width, tc.height, tc.opts); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestGenerateOrigins(t *testing.T) {
	img := createTestImage(1000, 1000)
	crops, err := Generate(img, Options{ShapeX: 500, ShapeY: 500})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []struct{ x, y int }{
		{0, 0}, {500, 0}, {0, 500}, {500, 500},
	}
	if len(crops) != len(want) {
		t.Fatalf("expected %d crops, got %d", len(want), len(crops))
	}
	for i, crop := range crops {
		if crop.Index != i+1 {
			t.Errorf("crop %d: expected index %d, got %d", i, i+1, crop.Index)
		}
		if crop.X != want[i].x || crop.Y != want[i].y {
			t.Errorf("crop %d: expected origin (%d,%d), got (%d,%d)",
				i, want[i].x, want[i].y, crop.X, crop.Y)
		}
	}
}

func TestGenerateSmallerThanOneCrop(t *testing.T) {
	img := createTestImage(300, 200)
	crops, err := Generate(img, Options{ShapeX: 500, ShapeY: 500})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(crops) != 1 {
		t.Fatalf("expected exactly 1 crop, got %d", len(crops))
	}
	crop := crops[0]
	if crop.X != 0 || crop.Y != 0 {
		t.Errorf("expected origin (0,0), got (%d,%d)", crop.X, crop.Y)
	}
	canvas := crop.Canvas.Bounds()
	if canvas.Dx() != 500 || canvas.Dy() != 500 {
		t.Errorf("expected 500x500 upsampled canvas, got %dx%d", canvas.Dx(), canvas.Dy())
	}
}

func TestGenerateInvariants(t *testing.T) {
	configs := []struct {
		width, height int
		opts          Options
	}{
		{1000, 1000, Options{ShapeX: 500, ShapeY: 500}},
		{1000, 1000, Options{ShapeX: 500, ShapeY: 500, OverlapX: 50, OverlapY: 50}},
		{1920, 1080, Options{ShapeX: 640, ShapeY: 640, OverlapX: 25, OverlapY: 25}},
		{800, 600, Options{ShapeX: 300, ShapeY: 200, OverlapX: 10, OverlapY: 40}},
		{123, 457, Options{ShapeX: 100, ShapeY: 100, OverlapX: 33, OverlapY: 17}},
	}

	for _, tc := range configs {
		img := createTestImage(tc.width, tc.height)
		grid, err := PlanGrid(tc.width, tc.height, tc.opts)
		if err != nil {
			t.Fatalf("PlanGrid failed: %v", err)
		}
		crops, err := Generate(img, tc.opts)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if len(crops) != grid.Count() {
			t.Errorf("%dx%d: expected %d crops, got %d", tc.width, tc.height, grid.Count(), len(crops))
		}
		for i, crop := range crops {
			if crop.Index != i+1 {
				t.Errorf("%dx%d: crop indices not contiguous at %d", tc.width, tc.height, i)
			}
			if crop.X+tc.opts.ShapeX > grid.Width || crop.Y+tc.opts.ShapeY > grid.Height {
				t.Errorf("%dx%d: crop %d at (%d,%d) exceeds %dx%d canvas",
					tc.width, tc.height, crop.Index, crop.X, crop.Y, grid.Width, grid.Height)
			}
			b := crop.Pixels.Bounds()
			if b.Dx() != tc.opts.ShapeX || b.Dy() != tc.opts.ShapeY {
				t.Errorf("%dx%d: crop %d has size %dx%d, want %dx%d",
					tc.width, tc.height, crop.Index, b.Dx(), b.Dy(), tc.opts.ShapeX, tc.opts.ShapeY)
			}
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	img := createTestImage(1920, 1080)
	opts := Options{ShapeX: 640, ShapeY: 640, OverlapX: 25, OverlapY: 25}

	first, err := Generate(img, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := Generate(img, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("crop counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].X != second[i].X || first[i].Y != second[i].Y {
			t.Errorf("crop %d placement differs: (%d,%d) vs (%d,%d)",
				i+1, first[i].X, first[i].Y, second[i].X, second[i].Y)
		}
	}
}

func TestGenerateCropsAreCopies(t *testing.T) {
	img := createTestImage(1000, 1000)
	crops, err := Generate(img, Options{ShapeX: 500, ShapeY: 500})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	canvas, ok := crops[0].Canvas.(*image.NRGBA)
	if !ok {
		t.Fatalf("expected NRGBA canvas, got %T", crops[0].Canvas)
	}
	before := canvas.NRGBAAt(10, 10)

	crops[0].Pixels.SetNRGBA(10, 10, color.NRGBA{1, 2, 3, 255})
	if canvas.NRGBAAt(10, 10) != before {
		t.Error("mutating a crop's pixels changed the shared canvas")
	}
}

func TestGenerateObserver(t *testing.T) {
	img := createTestImage(1000, 1000)
	var observed int
	opts := Options{
		ShapeX: 500,
		ShapeY: 500,
		Observer: func(crops []*Crop) {
			observed = len(crops)
		},
	}

	crops, err := Generate(img, opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if observed != len(crops) {
		t.Errorf("observer saw %d crops, expected %d", observed, len(crops))
	}
}

func TestGenerateNilImage(t *testing.T) {
	if _, err := Generate(nil, Options{ShapeX: 100, ShapeY: 100}); err == nil {
		t.Error("expected error for nil image")
	}
}

func BenchmarkGenerate(b *testing.B) {
	img := createTestImage(1920, 1080)
	opts := Options{ShapeX: 640, ShapeY: 640, OverlapX: 25, OverlapY: 25}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Generate(img, opts); err != nil {
			b.Fatal(err)
		}
	}
}
