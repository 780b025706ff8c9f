// Package processing handles image I/O and rendering around the detection
// pipeline: loading from files or URLs, saving results, preparing payloads
// for vision-model backends, and drawing debug output.
package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/tiling"
	"github.com/curtis18/YOLO-Patch-Based-Inference/pkg/types"
)

// Processor handles image processing operations
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Patch-Detect/1.0 (+https://github.com/curtis18/YOLO-Patch-Based-Inference)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %v", err)
	}

	return p.decodeImageFromBytes(imageData)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	low := strings.ToLower(path)
	if strings.HasSuffix(low, ".webp") || strings.Contains(low, ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err == nil {
			if img, _, err := image.Decode(f); err == nil {
				return img, nil
			}
		}
	} else {
		if _, err := f.Seek(0, 0); err == nil {
			if img, _, err := image.Decode(f); err == nil {
				return img, nil
			}
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	reader := bytes.NewReader(data)
	if img, _, err := image.Decode(reader); err == nil {
		return img, nil
	}

	reader = bytes.NewReader(data)
	if img, err := webp.Decode(reader); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// fitToMaxDim downscales the image so its long side is at most maxDim.
// A maxDim of zero or below disables the resize.
func fitToMaxDim(img image.Image, maxDim int) image.Image {
	if maxDim < 1 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// EncodeImageForModel produces the JPEG payload sent to vision-model
// backends, downscaling the long side to maxDim when set.
func (p *Processor) EncodeImageForModel(img image.Image, maxDim, quality int) ([]byte, error) {
	img = fitToMaxDim(img, maxDim)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if strings.ToLower(format) == "png" {
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, fitToMaxDim(img, maxDim)); err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
	}

	data, err := p.EncodeImageForModel(img, maxDim, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// DrawDetections renders detection boxes and mask outlines onto a copy of
// the image. Detections must be in the image's own coordinate space.
func (p *Processor) DrawDetections(img image.Image, dets []types.Detection) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}
	red := color.NRGBA{255, 0, 0, 255}
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side

	for _, d := range dets {
		drawBox(nrgba, d.Box, stroke, green)
		for i := 0; i+1 < len(d.Mask); i++ {
			drawSegment(nrgba, d.Mask[i], d.Mask[i+1], red)
		}
		if len(d.Mask) > 2 {
			drawSegment(nrgba, d.Mask[len(d.Mask)-1], d.Mask[0], red)
		}
	}

	return nrgba
}

// RenderCropGrid composes all crops into a single montage laid out the way
// they tile the canvas, with a thin separator between cells. Used by the
// show-crops debug flag.
func (p *Processor) RenderCropGrid(crops []*tiling.Crop, cols int) image.Image {
	if len(crops) == 0 || cols < 1 {
		return image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}

	rows := (len(crops) + cols - 1) / cols
	cellW := crops[0].Pixels.Bounds().Dx()
	cellH := crops[0].Pixels.Bounds().Dy()
	const gap = 4

	montage := imaging.New(cols*cellW+(cols-1)*gap, rows*cellH+(rows-1)*gap, color.NRGBA{32, 32, 32, 255})
	for i, crop := range crops {
		row := i / cols
		col := i % cols
		montage = imaging.Paste(montage, crop.Pixels, image.Pt(col*(cellW+gap), row*(cellH+gap)))
	}
	return montage
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, box types.Box, stroke int, c color.NRGBA) {
	x0 := int(box.X1 + 0.5)
	y0 := int(box.Y1 + 0.5)
	x1 := int(box.X2 + 0.5)
	y1 := int(box.Y2 + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

// drawSegment draws a line between two mask vertices with a simple DDA walk.
func drawSegment(img *image.NRGBA, a, b types.Point, c color.NRGBA) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	steps := int(math.Max(math.Abs(dx), math.Abs(dy)))
	if steps == 0 {
		setPixel(img, int(a.X), int(a.Y), c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		setPixel(img, int(a.X+dx*t+0.5), int(a.Y+dy*t+0.5), c)
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if x < 0 || y < 0 || x >= img.Bounds().Dx() || y >= img.Bounds().Dy() {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
