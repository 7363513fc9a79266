// Package stages holds the image I/O steps of a pipeline run: decoding
// fetched images, denoising region cutouts and writing the run directory.
package stages

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"galaxy-roi/internal/logger"
	"galaxy-roi/internal/models"
	"galaxy-roi/internal/opencv/safe"
)

// ImageData is a decoded image held as a BGR Mat plus the raw bytes it came from.
type ImageData struct {
	Mat      *safe.Mat
	Raw      []byte
	Width    int
	Height   int
	Channels int
	Format   string
	LoadTime time.Duration
}

// Close releases the underlying Mat. Safe to call more than once.
func (d *ImageData) Close() {
	if d == nil || d.Mat == nil {
		return
	}
	d.Mat.Close()
}

type Loader struct {
	log logger.Logger
}

func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{log: log}
}

// Load sniffs the encoded image, then decodes it into a BGR Mat. The
// caller owns the returned data and must Close it.
func (l *Loader) Load(data []byte, tag string) (*ImageData, error) {
	start := time.Now()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: unrecognised image (%d bytes): %v: %w", tag, len(data), err, models.ErrMalformedInput)
	}

	mat, err := safe.Decode(data, tag)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", tag, err, models.ErrMalformedInput)
	}

	if mat.Cols() != cfg.Width || mat.Rows() != cfg.Height {
		l.log.Warning("PipelineLoader", "decoded size differs from header", map[string]interface{}{
			"tag":    tag,
			"header": fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"mat":    fmt.Sprintf("%dx%d", mat.Cols(), mat.Rows()),
		})
	}

	img := &ImageData{
		Mat:      mat,
		Raw:      data,
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
		Format:   format,
		LoadTime: time.Since(start),
	}

	l.log.Debug("PipelineLoader", "image loaded", map[string]interface{}{
		"tag":      tag,
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
		"format":   format,
	})
	return img, nil
}
