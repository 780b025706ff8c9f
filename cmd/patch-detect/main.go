package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	patchdetect "github.com/curtis18/YOLO-Patch-Based-Inference"
	"github.com/curtis18/YOLO-Patch-Based-Inference/internal/config"
	"github.com/curtis18/YOLO-Patch-Based-Inference/internal/utils"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/detector"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/inference"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/ollama"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/onnx"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/processing"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/tiling"
)

// flagValues carries the parsed command-line values. Which of them apply
// over a loaded config file is decided per flag, so defaults of flags the
// user never passed cannot stomp values from the file.
type flagValues struct {
	backend   string
	modelPath string
	model     string
	url       string
	classes   string

	shapeX, shapeY     int
	overlapX, overlapY float64

	imgsz         int
	conf, iou     float64
	segment       bool
	showCrops     bool
	resizeResults bool
	workers       int

	outDir  string
	ext     string
	quality int
}

func main() {
	var fl flagValues
	var in, configPath, ortLib string
	var parallel, debug bool

	flag.StringVar(&in, "in", "", "input image path, directory, or URL (jpg/png/webp)")
	flag.StringVar(&fl.outDir, "out", "./out", "output directory")
	flag.StringVar(&configPath, "config", "", "JSON config file (explicit flags override)")

	flag.StringVar(&fl.backend, "backend", "onnx", "detector backend: onnx or ollama")
	flag.StringVar(&fl.modelPath, "modelpath", "", "ONNX model weights (.onnx)")
	flag.StringVar(&ortLib, "ortlib", "", "ONNX Runtime shared library path (optional)")
	flag.StringVar(&fl.model, "model", "llava", "ollama model name")
	flag.StringVar(&fl.url, "url", "http://localhost:11434", "ollama server URL")
	flag.StringVar(&fl.classes, "classes", "", "comma-separated class names")

	flag.IntVar(&fl.shapeX, "shapex", 700, "crop width in pixels")
	flag.IntVar(&fl.shapeY, "shapey", 700, "crop height in pixels")
	flag.Float64Var(&fl.overlapX, "overlapx", 25, "horizontal overlap percentage [0,100)")
	flag.Float64Var(&fl.overlapY, "overlapy", 25, "vertical overlap percentage [0,100)")

	flag.IntVar(&fl.imgsz, "imgsz", 640, "inference input size")
	flag.Float64Var(&fl.conf, "conf", 0.5, "confidence threshold (0-1)")
	flag.Float64Var(&fl.iou, "iou", 0.7, "IoU threshold for per-crop NMS (0-1)")
	flag.BoolVar(&fl.segment, "segment", false, "request segmentation masks")
	flag.BoolVar(&fl.resizeResults, "resize", false, "remap detections into original image coordinates")
	flag.BoolVar(&fl.showCrops, "showcrops", false, "write a crop-grid montage for inspection")
	flag.BoolVar(&parallel, "parallel", false, "run crop inference concurrently")
	flag.IntVar(&fl.workers, "workers", 0, "worker count for -parallel (0 = NumCPU)")

	flag.StringVar(&fl.ext, "ext", "jpg", "output format: jpg|png|webp")
	flag.IntVar(&fl.quality, "quality", 90, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&debug, "debug", false, "write detection overlay image")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in input.jpg|dir|URL [-backend onnx|ollama] [-modelpath model.onnx] [-classes person,car] [-out outdir]", filepath.Base(os.Args[0]))
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	applyFlags(cfg, fl, set)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		log.Fatal(err)
	}

	processor := processing.NewProcessor()

	det, closeDet, err := buildDetector(cfg, ortLib)
	if err != nil {
		log.Fatal(err)
	}
	defer closeDet()

	inputs := []string{in}
	if info, err := os.Stat(in); err == nil && info.IsDir() {
		files, err := utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
		if len(files) == 0 {
			log.Fatalf("no image files under %s", in)
		}
		sort.Strings(files)
		inputs = files
		log.Printf("processing %d images from %s", len(files), in)
	}

	for _, input := range inputs {
		if err := processOne(processor, cfg, det, input, parallel, debug); err != nil {
			if len(inputs) == 1 {
				log.Fatal(err)
			}
			log.Printf("%s: %v", input, err)
		}
	}
}

// processOne runs the full pipeline for a single input and writes its
// artifacts into the output directory.
func processOne(processor *processing.Processor, cfg *config.Config, det detector.Detector, input string, parallel, debug bool) error {
	img, err := processor.LoadImageSmart(input)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	log.Printf("%s: input %dx%d, crops %dx%d with %.0f%%/%.0f%% overlap",
		input, bounds.Dx(), bounds.Dy(), cfg.Tiling.ShapeX, cfg.Tiling.ShapeY, cfg.Tiling.OverlapX, cfg.Tiling.OverlapY)

	pipeline := patchdetect.New(det)
	pipeline.Tiling = tiling.Options{
		ShapeX:   cfg.Tiling.ShapeX,
		ShapeY:   cfg.Tiling.ShapeY,
		OverlapX: cfg.Tiling.OverlapX,
		OverlapY: cfg.Tiling.OverlapY,
	}
	pipeline.Inference = inference.Options{
		Options: detector.Options{
			ImageSize: cfg.Inference.ImageSize,
			Conf:      cfg.Inference.Conf,
			IoU:       cfg.Inference.IoU,
			Segment:   cfg.Inference.Segment,
		},
		ResizeResults: cfg.Inference.ResizeResults,
		Workers:       cfg.Inference.Workers,
	}
	pipeline.Parallel = parallel

	format := strings.ToLower(cfg.Output.Format)

	if cfg.Tiling.ShowCrops {
		pipeline.Tiling.Observer = func(crops []*tiling.Crop) {
			if len(crops) == 0 {
				return
			}
			grid, err := tiling.PlanGrid(bounds.Dx(), bounds.Dy(), pipeline.Tiling)
			if err != nil {
				return
			}
			montage := processor.RenderCropGrid(crops, grid.XSteps)
			gridPath := utils.OutputFilename(input, cfg.Output.OutputDir, "crops", format)
			if err := processor.SaveImage(montage, gridPath, format, cfg.Output.Quality, false); err != nil {
				log.Printf("crop grid save failed: %v", err)
			} else {
				log.Printf("wrote %s (%d crops)", gridPath, len(crops))
			}
		}
	}

	crops, err := pipeline.Detect(context.Background(), img)
	if err != nil {
		return err
	}

	total := 0
	for _, crop := range crops {
		if crop.Err != nil {
			log.Printf("crop %d failed: %v", crop.Index, crop.Err)
			continue
		}
		total += len(crop.ScaledDetections)
	}
	log.Printf("%s: %d crops, %d detections, %d failures", input, len(crops), total, len(inference.Failed(crops)))

	all := inference.Collect(crops)

	if debug {
		// The overlay target depends on the result coordinate space.
		target := img
		if !cfg.Inference.ResizeResults && len(crops) > 0 {
			target = crops[0].Canvas
		}
		overlay := processor.DrawDetections(target, all)
		overlayPath := utils.OutputFilename(input, cfg.Output.OutputDir, "detections", format)
		if err := processor.SaveImage(overlay, overlayPath, format, cfg.Output.Quality, false); err != nil {
			log.Printf("overlay save failed: %v", err)
		} else {
			log.Printf("wrote %s", overlayPath)
		}
	}

	js, _ := json.MarshalIndent(all, "", "  ")
	jsonPath := utils.OutputFilename(input, cfg.Output.OutputDir, "detections", "json")
	if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s", jsonPath)
	return nil
}

// applyFlags overlays explicitly-set flags onto the config. set holds the
// flag names reported by flag.Visit after parsing.
func applyFlags(cfg *config.Config, fl flagValues, set map[string]bool) {
	if set["backend"] {
		cfg.Detector.Backend = fl.backend
	}
	if set["modelpath"] {
		cfg.Detector.ModelPath = fl.modelPath
	}
	if set["model"] {
		cfg.Detector.Model = fl.model
	}
	if set["url"] {
		cfg.Detector.ServerURL = fl.url
	}
	if set["classes"] {
		cfg.Detector.ClassNames = splitClasses(fl.classes)
	}

	if set["shapex"] {
		cfg.Tiling.ShapeX = fl.shapeX
	}
	if set["shapey"] {
		cfg.Tiling.ShapeY = fl.shapeY
	}
	if set["overlapx"] {
		cfg.Tiling.OverlapX = fl.overlapX
	}
	if set["overlapy"] {
		cfg.Tiling.OverlapY = fl.overlapY
	}
	if set["showcrops"] {
		cfg.Tiling.ShowCrops = fl.showCrops
	}

	if set["imgsz"] {
		cfg.Inference.ImageSize = fl.imgsz
	}
	if set["conf"] {
		cfg.Inference.Conf = fl.conf
	}
	if set["iou"] {
		cfg.Inference.IoU = fl.iou
	}
	if set["segment"] {
		cfg.Inference.Segment = fl.segment
	}
	if set["resize"] {
		cfg.Inference.ResizeResults = fl.resizeResults
	}
	if set["workers"] {
		cfg.Inference.Workers = fl.workers
	}

	if set["out"] {
		cfg.Output.OutputDir = fl.outDir
	}
	if set["ext"] {
		cfg.Output.Format = fl.ext
	}
	if set["quality"] {
		cfg.Output.Quality = fl.quality
	}
}

func buildDetector(cfg *config.Config, ortLib string) (detector.Detector, func(), error) {
	switch cfg.Detector.Backend {
	case "onnx":
		if cfg.Detector.ModelPath == "" {
			return nil, nil, fmt.Errorf("onnx backend requires -modelpath")
		}
		if len(cfg.Detector.ClassNames) == 0 {
			return nil, nil, fmt.Errorf("onnx backend requires -classes")
		}
		if err := onnx.Initialize(ortLib); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
		det, err := onnx.New(onnx.Config{
			ModelPath:  cfg.Detector.ModelPath,
			InputSize:  cfg.Inference.ImageSize,
			ClassNames: cfg.Detector.ClassNames,
			PoolSize:   cfg.Detector.PoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return det, det.Close, nil
	case "ollama":
		det, err := ollama.NewDetector(cfg.Detector.ServerURL, cfg.Detector.Model, cfg.Detector.ClassNames)
		if err != nil {
			return nil, nil, err
		}
		return det, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend: %s (use 'onnx' or 'ollama')", cfg.Detector.Backend)
	}
}

func splitClasses(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
