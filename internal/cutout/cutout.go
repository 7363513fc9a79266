// Package cutout builds and fetches image-cutout requests against the SDSS
// ImgCutout service, for the wide field and for each confirmed region.
package cutout

import (
	"context"
	"fmt"
	"strconv"

	"galaxy-roi/internal/services"
	"galaxy-roi/internal/sky"
)

const (
	DefaultBaseURL = "http://skyserver.sdss.org/dr16/SkyServerWS/ImgCutout/getjpeg"

	// DefaultScaleMargin loosens region framing, in arcsec/pixel.
	DefaultScaleMargin = 0.02
)

// Request is one cutout: a centre, a pixel size and an arcsec/pixel scale.
type Request struct {
	Center sky.Coordinate
	Scale  float64
	Width  int
	Height int
	Opt    string
}

// FrameRequest is the wide-field request for f.
func FrameRequest(f sky.Frame) Request {
	return Request{
		Center: f.Center(),
		Scale:  f.Scale,
		Width:  f.Width,
		Height: f.Height,
	}
}

// Builder derives per-region cutout requests.
type Builder struct {
	Bounds      sky.Bounds
	ScaleMargin float64
}

func NewBuilder(bounds sky.Bounds, margin float64) Builder {
	return Builder{Bounds: bounds, ScaleMargin: margin}
}

// RegionRequest frames box on its own: sized from the box's sky corners,
// scale widened by the margin and forced square on the larger side.
func (b Builder) RegionRequest(f sky.Frame, box sky.PixelBox) (Request, error) {
	topLeft, bottomRight := f.BoxCorners(box)

	scale, w, h, err := b.Bounds.FrameDimensions(topLeft, bottomRight)
	if err != nil {
		return Request{}, fmt.Errorf("region %+v: %w", box, err)
	}

	scale += b.ScaleMargin
	side := max(w, h)

	return Request{
		Center: sky.CenterCoordinate(topLeft, bottomRight),
		Scale:  scale,
		Width:  side,
		Height: side,
	}, nil
}

type Client struct {
	baseURL string
	fetcher *services.Fetcher
}

func NewClient(baseURL string, fetcher *services.Fetcher) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if fetcher == nil {
		fetcher = services.NewFetcher(services.Options{Service: "cutout"})
	}
	return &Client{baseURL: baseURL, fetcher: fetcher}
}

// URL formats req against the service. Parameter order is kept stable so
// the URL can be compared across runs.
func (c *Client) URL(req Request) string {
	return fmt.Sprintf("%s?ra=%s&dec=%s&width=%d&height=%d&opt=%s&scale=%s",
		c.baseURL,
		formatFloat(req.Center.RA),
		formatFloat(req.Center.Dec),
		req.Width,
		req.Height,
		req.Opt,
		formatFloat(req.Scale),
	)
}

// Fetch downloads the JPEG for req.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return c.FetchURL(ctx, c.URL(req))
}

func (c *Client) FetchURL(ctx context.Context, url string) ([]byte, error) {
	return c.fetcher.Get(ctx, url)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildRegionRequest frames box with the default bounds and margin.
func BuildRegionRequest(f sky.Frame, box sky.PixelBox) (Request, error) {
	return NewBuilder(sky.DefaultBounds, DefaultScaleMargin).RegionRequest(f, box)
}
