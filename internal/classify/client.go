// Package classify sends region images to an external morphology
// classifier and validates its answers.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"mime/multipart"
	"net/http"

	"gocv.io/x/gocv"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/opencv/safe"
	"galaxy-roi/internal/roi"
	"galaxy-roi/internal/services"
)

// InputSize is the square edge the classifier expects, in pixels.
const InputSize = 124

type response struct {
	Class      string   `json:"class"`
	Confidence *float64 `json:"confidence"`
}

type Client struct {
	url     string
	fetcher *services.Fetcher
	alloc   memory.Allocator
}

func NewClient(url string, fetcher *services.Fetcher, alloc memory.Allocator) *Client {
	if fetcher == nil {
		fetcher = services.NewFetcher(services.Options{Service: "classifier"})
	}
	if alloc == nil {
		alloc = memory.Direct()
	}
	return &Client{url: url, fetcher: fetcher, alloc: alloc}
}

// Classify resizes img to the classifier's input size and posts it.
func (c *Client) Classify(ctx context.Context, img []byte) (roi.Classification, error) {
	input, err := c.prepare(img)
	if err != nil {
		return roi.Classification{}, err
	}

	body, contentType, err := multipartBody(input)
	if err != nil {
		return roi.Classification{}, err
	}

	data, err := c.fetcher.Do(ctx, c.url, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return roi.Classification{}, err
	}

	return ParseResponse(data)
}

func (c *Client) prepare(img []byte) ([]byte, error) {
	src, err := safe.Decode(img, "classifier_source")
	if err != nil {
		return nil, fmt.Errorf("region image: %v: %w", err, models.ErrMalformedInput)
	}
	defer src.Close()

	dst, err := c.alloc.GetMat(InputSize, InputSize, src.Type(), "classifier_input")
	if err != nil {
		return nil, fmt.Errorf("classifier input Mat: %w", err)
	}
	defer c.alloc.ReleaseMat(dst)

	gocv.Resize(src.GetMat(), dst.Ptr(), image.Pt(InputSize, InputSize), 0, 0, gocv.InterpolationLinear)

	return dst.Encode(gocv.JPEGFileExt)
}

func multipartBody(img []byte) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "region.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, "", fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

// ParseResponse decodes and validates a classifier answer.
func ParseResponse(data []byte) (roi.Classification, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return roi.Classification{}, fmt.Errorf("classifier response: %v: %w", err, models.ErrServiceFailure)
	}
	if !roi.ValidClass(resp.Class) {
		return roi.Classification{}, fmt.Errorf("classifier returned unknown class %q: %w", resp.Class, models.ErrServiceFailure)
	}
	if resp.Confidence == nil {
		return roi.Classification{}, fmt.Errorf("classifier response has no confidence: %w", models.ErrServiceFailure)
	}
	conf := *resp.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 100 {
		return roi.Classification{}, fmt.Errorf("classifier confidence %v out of range: %w", conf, models.ErrServiceFailure)
	}
	return roi.Classification{Class: resp.Class, Confidence: conf}, nil
}
