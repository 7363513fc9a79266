package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/roi"
	"galaxy-roi/internal/sky"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 3), uint8(y * 5), uint8((x + y) % 256), 255})
		}
	}
	return img
}

func encode(t *testing.T, format string, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	}
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoaderFormats(t *testing.T) {
	l := NewLoader(nil)
	for _, format := range []string{"png", "jpeg", "bmp"} {
		t.Run(format, func(t *testing.T) {
			img, err := l.Load(encode(t, format, testImage(40, 30)), "frame")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			defer img.Close()

			if img.Format != format {
				t.Errorf("format = %q, want %q", img.Format, format)
			}
			if img.Width != 40 || img.Height != 30 || img.Channels != 3 {
				t.Errorf("decoded %dx%dx%d", img.Width, img.Height, img.Channels)
			}
		})
	}
}

func TestLoaderRejectsGarbage(t *testing.T) {
	_, err := NewLoader(nil).Load([]byte("<html>rate limited</html>"), "frame")
	if !errors.Is(err, models.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestDenoiserKeepsSize(t *testing.T) {
	mgr := memory.NewManager(nil)
	defer mgr.Shutdown()

	out, err := NewDenoiser(mgr).Denoise(context.Background(), encode(t, "jpeg", testImage(48, 32)))
	if err != nil {
		t.Fatalf("Denoise: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 48 || cfg.Height != 32 {
		t.Fatalf("output is %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDenoiserCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDenoiser(nil).Denoise(ctx, encode(t, "png", testImage(16, 16))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSaverLayout(t *testing.T) {
	root := t.TempDir()
	s := NewSaver(root, nil)

	frame, err := sky.NewFrame(sky.Coordinate{RA: 10.3, Dec: 20}, sky.Coordinate{RA: 10, Dec: 20.2}, sky.DefaultBounds)
	if err != nil {
		t.Fatal(err)
	}
	store := roi.NewStore(frame, "http://example.test/frame")
	store.Add(sky.PixelBox{X: 1, Y: 2, Width: 30, Height: 40}, "u0")
	store.Add(sky.PixelBox{X: 50, Y: 60, Width: 30, Height: 40}, "u1")
	store.ApplyClassifications(map[int]roi.Classification{1: {Class: "espiral", Confidence: 80}})

	const runID = "run-1"
	if err := s.SaveFrame(runID, []byte("frame"), roi.NewFrameRecord(frame, store.FrameURL)); err != nil {
		t.Fatalf("SaveFrame: %v", err)
	}
	if err := s.SaveCandidates(runID, []byte("overlay")); err != nil {
		t.Fatalf("SaveCandidates: %v", err)
	}
	if err := s.SaveRegions(runID, store, map[int][]byte{0: []byte("r0"), 1: []byte("r1")}); err != nil {
		t.Fatalf("SaveRegions: %v", err)
	}
	if err := s.SaveClassified(runID, store); err != nil {
		t.Fatalf("SaveClassified: %v", err)
	}
	path, err := s.SaveResult(runID, []byte("final"))
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if path != filepath.Join(root, runID, "resultado", "imagen_final.jpg") {
		t.Errorf("result path = %s", path)
	}

	for rel, want := range map[string]string{
		"imagen/imagen.jpg":           "frame",
		"imagen/imagen_contornos.jpg": "overlay",
		"rdis/rdi_1.jpg":              "r0",
		"rdis/rdi_2.jpg":              "r1",
		"resultado/imagen_final.jpg":  "final",
	} {
		got, err := os.ReadFile(filepath.Join(root, runID, rel))
		if err != nil {
			t.Errorf("%s: %v", rel, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}

	data, err := os.ReadFile(filepath.Join(root, runID, "rdis", "rdis.txt"))
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := roi.Load(data, frame)
	if err != nil {
		t.Fatalf("saved region record does not load: %v", err)
	}
	if loaded.Total() != 2 {
		t.Fatalf("Total() = %d", loaded.Total())
	}

	data, err = os.ReadFile(filepath.Join(root, runID, "imagen", "imagen.txt"))
	if err != nil {
		t.Fatal(err)
	}
	rec, err := roi.ParseFrameRecord(data)
	if err != nil {
		t.Fatalf("saved frame record does not parse: %v", err)
	}
	if rec.Frame() != frame {
		t.Fatalf("frame = %+v", rec.Frame())
	}

	data, err = os.ReadFile(filepath.Join(root, runID, "rdis", "rdis_classified.txt"))
	if err != nil {
		t.Fatal(err)
	}
	var classified map[string]map[string]interface{}
	if err := json.Unmarshal(data, &classified); err != nil {
		t.Fatal(err)
	}
	if _, ok := classified["1"]["classification"]; !ok {
		t.Errorf("region 1 lacks classification: %v", classified["1"])
	}
}
