// Package ollama implements the detector capability on top of an Ollama
// vision model. The model is prompted to return detections as JSON pixel
// boxes for the supplied crop; responses are sanitized before parsing since
// vision models routinely wrap JSON in fences or commentary.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/detector"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/processing"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

const promptTemplate = `You are an object detector.

The image is %dx%d pixels. Find every object belonging to these classes: %s.

Return JSON only, an array of detections:
[
  {"class": "string", "confidence": 0.0, "box": {"x1": 0.0, "y1": 0.0, "x2": 0.0, "y2": 0.0}}
]

HARD RULES
- Coordinates are PIXELS in the supplied image, x1<x2, y1<y2.
- confidence is in [0,1]. Omit objects below %.2f confidence.
- Use only the listed class names.
- If nothing is found return [].
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Detector runs detection through an Ollama vision model.
type Detector struct {
	client  *api.Client
	proc    *processing.Processor
	model   string
	quality int

	mu      sync.Mutex
	classes []string
	classID map[string]int
}

// NewDetector creates a detector backed by the Ollama server at serverURL.
// classes is the detection vocabulary; labels outside it reported by the
// model are assigned new ids in first-seen order.
func NewDetector(serverURL, model string, classes []string) (*Detector, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	// Base URL only; paths like /api/chat are handled by the SDK.
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	d := &Detector{
		client:  api.NewClient(baseURL, http.DefaultClient),
		proc:    processing.NewProcessor(),
		model:   model,
		quality: 90,
		classID: make(map[string]int),
	}
	for _, c := range classes {
		d.idFor(c)
	}
	return d, nil
}

// ClassNames maps class ids to the labels seen so far.
func (d *Detector) ClassNames() map[int]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make(map[int]string, len(d.classes))
	for i, c := range d.classes {
		names[i] = c
	}
	return names
}

func (d *Detector) idFor(label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.classID[label]; ok {
		return id
	}
	id := len(d.classes)
	d.classes = append(d.classes, label)
	d.classID[label] = id
	return id
}

func (d *Detector) vocabulary() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.classes) == 0 {
		return "any visible object class"
	}
	return strings.Join(d.classes, ", ")
}

// Infer sends one crop to the model and parses its detections. Mask output
// is not supported by this backend; opts.Segment is ignored.
func (d *Detector) Infer(ctx context.Context, img image.Image, opts detector.Options) ([]types.Detection, error) {
	// Vision models on CPU can be slow; cap the call if the caller didn't.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	bounds := img.Bounds()
	payload, err := d.proc.EncodeImageForModel(img, opts.ImageSize, d.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	prompt := fmt.Sprintf(promptTemplate, bounds.Dx(), bounds.Dy(), d.vocabulary(), opts.Conf)

	streamFalse := false
	req := &api.ChatRequest{
		Model: d.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(payload)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err = d.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %v", err)
	}
	if responseContent == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	raw, err := parseDetections(responseContent)
	if err != nil {
		return nil, err
	}

	dets := make([]types.Detection, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < opts.Conf {
			continue
		}
		box := clampBox(r.Box, float64(bounds.Dx()), float64(bounds.Dy()))
		if box.Width() <= 0 || box.Height() <= 0 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(r.Class))
		dets = append(dets, types.Detection{
			ClassID:    d.idFor(label),
			ClassName:  label,
			Confidence: r.Confidence,
			Box:        box,
		})
	}
	return dets, nil
}

type rawDetection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	Box        types.Box `json:"box"`
}

// parseDetections parses the JSON array from the model reply. Non-JSON
// responses yield an empty result rather than an error: the model declining
// to answer in format is treated as "nothing detected", keeping a single
// bad reply from failing its crop's siblings.
func parseDetections(raw string) ([]rawDetection, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "[") && !strings.HasPrefix(raw, "{") {
		return nil, nil
	}

	// Some models wrap the array in an object.
	if strings.HasPrefix(raw, "{") {
		var wrapper struct {
			Detections []rawDetection `json:"detections"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
			return wrapper.Detections, nil
		}
		return nil, nil
	}

	var dets []rawDetection
	if err := json.Unmarshal([]byte(raw), &dets); err != nil {
		// Conservative bracket-slice retry
		start := strings.Index(raw, "[")
		end := strings.LastIndex(raw, "]")
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(raw[start:end+1]), &dets); err2 == nil {
				return dets, nil
			}
		}
		return nil, nil
	}
	return dets, nil
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from
// the model response.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	// Remove /* ... */ block comments
	reBlock := regexp.MustCompile(`(?s)/\*.*?\*/`)
	raw = reBlock.ReplaceAllString(raw, "")

	// Remove // line/inline comments
	reLine := regexp.MustCompile(`(?m)^\s*//.*$`)
	raw = reLine.ReplaceAllString(raw, "")
	reInline := regexp.MustCompile(`(?m)//.*$`)
	raw = reInline.ReplaceAllString(raw, "")

	// Remove trailing commas before } or ]
	reTrailing := regexp.MustCompile(`,(\s*[}\]])`)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost [...] or {...}
	startArr := strings.Index(raw, "[")
	startObj := strings.Index(raw, "{")
	if startArr >= 0 && (startObj < 0 || startArr < startObj) {
		if end := strings.LastIndex(raw, "]"); end > startArr {
			raw = raw[startArr : end+1]
		}
	} else if startObj >= 0 {
		if end := strings.LastIndex(raw, "}"); end > startObj {
			raw = raw[startObj : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func clampBox(b types.Box, w, h float64) types.Box {
	return types.Box{
		X1: clamp(b.X1, 0, w),
		Y1: clamp(b.Y1, 0, h),
		X2: clamp(b.X2, 0, w),
		Y2: clamp(b.Y2, 0, h),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
