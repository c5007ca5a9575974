package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func testPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	red := color.RGBA{255, 0, 0, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, red)
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// createTestPNGDataURI creates a small 2x2 red PNG as a data URI.
func createTestPNGDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(2, 2))
}

func TestIsDataURI(t *testing.T) {
	if !IsDataURI("data:image/png;base64,abc") {
		t.Error("expected true for data URI")
	}
	if IsDataURI("/path/to/file.png") {
		t.Error("expected false for file path")
	}
	if IsDataURI("") {
		t.Error("expected false for empty string")
	}
}

func TestLoadImageFromDataURI(t *testing.T) {
	img, err := LoadImageFromDataURI(createTestPNGDataURI())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 2 || bounds.Dy() != 2 {
		t.Errorf("expected 2x2 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestLoadImageFromDataURI_Invalid(t *testing.T) {
	tests := []string{
		"not-a-data-uri",
		"data:image/png;base64", // no comma
		"data:image/png;base64,!!!invalid-base64!!!",
		"data:image/png;base64,aGVsbG8=", // valid base64 but not an image
	}
	for _, uri := range tests {
		if _, err := LoadImageFromDataURI(uri); err == nil {
			t.Errorf("expected error for %q", uri)
		}
	}
	if _, err := LoadImageFromDataURI("data:image/png;base64"); !errors.Is(err, ErrBadDataURI) {
		t.Errorf("expected ErrBadDataURI, got %v", err)
	}
}

func TestLoader_LoadCached(t *testing.T) {
	l := NewLoader("")
	uri := createTestPNGDataURI()
	img, err := l.Load(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img2, err := l.Load(uri)
	if err != nil {
		t.Fatalf("unexpected error on cached load: %v", err)
	}
	if img != img2 {
		t.Error("expected cached image to be the same pointer")
	}
}

func TestLoader_DimensionsDataURI(t *testing.T) {
	s, err := NewLoader("").Dimensions(createTestPNGDataURI())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Width != 2 || s.Height != 2 {
		t.Errorf("expected 2x2, got %dx%d", s.Width, s.Height)
	}
}

func TestLoader_DimensionsRelativePath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pic.png"), testPNG(5, 3), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	s, err := l.Dimensions("pic.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != (Size{5, 3}) {
		t.Errorf("expected 5x3, got %+v", s)
	}

	// cached: still answers after the file is gone
	os.Remove(filepath.Join(dir, "pic.png"))
	if s2, err := l.Dimensions("pic.png"); err != nil || s2 != s {
		t.Errorf("expected cached size, got %+v, %v", s2, err)
	}
}

func TestLoader_DimensionsMissing(t *testing.T) {
	if _, err := NewLoader(t.TempDir()).Dimensions("missing.png"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
