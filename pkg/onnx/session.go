// Package onnx implements the detector capability with a local YOLO-family
// model through ONNX Runtime. Sessions carry fixed-size input/output tensors
// and are pooled so crops can be inferred concurrently.
package onnx

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/detector"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

var initOnce sync.Once

// Initialize loads the ONNX Runtime shared library and initializes the
// environment. Must be called once before New; subsequent calls are no-ops.
func Initialize(libraryPath string) error {
	var err error
	initOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		err = ort.InitializeEnvironment()
	})
	return err
}

// Config describes a YOLO ONNX model. The input size is consumed here, at
// construction, because the session tensors have fixed shape; the ImageSize
// inference option is ignored by this backend.
type Config struct {
	// ModelPath is the .onnx weights file.
	ModelPath string
	// InputSize is the square model input in pixels. Defaults to 640.
	InputSize int
	// ClassNames maps output channel order to labels.
	ClassNames []string
	// PoolSize is the number of concurrent sessions. Defaults to 1.
	PoolSize int
	// InputName and OutputName default to the YOLOv8 export names
	// "images" and "output0".
	InputName  string
	OutputName string
}

func (c *Config) applyDefaults() {
	if c.InputSize < 1 {
		c.InputSize = 640
	}
	if c.InputName == "" {
		c.InputName = "images"
	}
	if c.OutputName == "" {
		c.OutputName = "output0"
	}
	if c.PoolSize < 1 {
		c.PoolSize = 1
	}
}

// numPredictions is the anchor count of a YOLOv8-style head for a square
// input: one cell per stride-8, -16 and -32 location.
func numPredictions(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		s := inputSize / stride
		n += s * s
	}
	return n
}

type modelSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newModelSession(cfg Config) (*modelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	n := numPredictions(cfg.InputSize)
	inputShape := ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize))
	outputShape := ort.NewShape(1, int64(4+len(cfg.ClassNames)), int64(n))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &modelSession{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

func (m *modelSession) Destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}

// Detector runs YOLO inference through a pool of ONNX Runtime sessions.
type Detector struct {
	cfg  Config
	pool *sessionPool
}

// New creates a detector from the model described by cfg. Initialize must
// have been called first.
func New(cfg Config) (*Detector, error) {
	cfg.applyDefaults()
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if len(cfg.ClassNames) == 0 {
		return nil, fmt.Errorf("class names are required")
	}

	pool, err := newSessionPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, pool: pool}, nil
}

// Close releases all pooled sessions.
func (d *Detector) Close() {
	d.pool.Close()
}

// ClassNames maps class ids to the configured labels.
func (d *Detector) ClassNames() map[int]string {
	names := make(map[int]string, len(d.cfg.ClassNames))
	for i, c := range d.cfg.ClassNames {
		names[i] = c
	}
	return names
}

// Infer runs one crop through the model and returns detections in the
// crop's pixel coordinates. Masks are not produced by this backend;
// opts.Segment is ignored.
func (d *Detector) Infer(ctx context.Context, img image.Image, opts detector.Options) ([]types.Detection, error) {
	session, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Release(session)

	resized := imaging.Resize(img, d.cfg.InputSize, d.cfg.InputSize, imaging.Linear)
	fillInput(resized, session.input.GetData(), d.cfg.InputSize, d.cfg.InputSize)

	if err := session.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	bounds := img.Bounds()
	dets := decodePredictions(session.output.GetData(), decodeParams{
		NumClasses: len(d.cfg.ClassNames),
		InputSize:  d.cfg.InputSize,
		OrigWidth:  bounds.Dx(),
		OrigHeight: bounds.Dy(),
		Conf:       opts.Conf,
		Names:      d.cfg.ClassNames,
	})
	return nonMaxSuppression(dets, opts.IoU), nil
}

// fillInput writes the image into the session's CHW float32 input buffer.
func fillInput(pic image.Image, buffer []float32, width, height int) {
	channelSize := width * height
	for y := 0; y < height; y++ {
		offset := y * width
		for x := 0; x < width; x++ {
			i := offset + x
			r, g, b, _ := pic.At(x, y).RGBA()
			buffer[i] = float32(r>>8) / 255.0
			buffer[channelSize+i] = float32(g>>8) / 255.0
			buffer[channelSize*2+i] = float32(b>>8) / 255.0
		}
	}
}
