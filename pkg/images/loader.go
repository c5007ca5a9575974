package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrBadDataURI is returned for data URIs that are not base64 encoded or
// lack a payload.
var ErrBadDataURI = errors.New("malformed data URI")

// Size is the pixel size of an image.
type Size struct {
	Width, Height int
}

// Loader resolves image sources relative to a base directory and caches both
// decoded images and their sizes. It is safe for concurrent use.
type Loader struct {
	base string

	mu     sync.RWMutex
	sizes  map[string]Size
	images map[string]image.Image
}

// NewLoader returns a loader resolving relative paths against base.
func NewLoader(base string) *Loader {
	return &Loader{
		base:   base,
		sizes:  make(map[string]Size),
		images: make(map[string]image.Image),
	}
}

// IsDataURI reports whether src carries its payload inline.
func IsDataURI(src string) bool {
	return strings.HasPrefix(src, "data:")
}

// decodeDataURI returns the payload of a base64 data URI.
func decodeDataURI(src string) ([]byte, error) {
	if !IsDataURI(src) {
		return nil, ErrBadDataURI
	}
	header, payload, ok := strings.Cut(src[len("data:"):], ",")
	if !ok {
		return nil, ErrBadDataURI
	}
	if !strings.HasSuffix(header, ";base64") {
		data, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDataURI, err)
		}
		return []byte(data), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDataURI, err)
	}
	return data, nil
}

// LoadImageFromDataURI decodes an image embedded in a data URI.
func LoadImageFromDataURI(src string) (image.Image, error) {
	data, err := decodeDataURI(src)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	return img, nil
}

func (l *Loader) open(src string) (io.ReadCloser, error) {
	if IsDataURI(src) {
		data, err := decodeDataURI(src)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	path := src
	if !filepath.IsAbs(path) && l.base != "" {
		path = filepath.Join(l.base, path)
	}
	return os.Open(path)
}

// Dimensions returns the pixel size of the image at src without decoding
// the pixel data.
func (l *Loader) Dimensions(src string) (Size, error) {
	l.mu.RLock()
	if s, ok := l.sizes[src]; ok {
		l.mu.RUnlock()
		return s, nil
	}
	if img, ok := l.images[src]; ok {
		l.mu.RUnlock()
		b := img.Bounds()
		return Size{b.Dx(), b.Dy()}, nil
	}
	l.mu.RUnlock()

	r, err := l.open(src)
	if err != nil {
		return Size{}, err
	}
	defer r.Close()

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return Size{}, fmt.Errorf("image %s: %w", shorten(src), err)
	}
	s := Size{cfg.Width, cfg.Height}

	l.mu.Lock()
	l.sizes[src] = s
	l.mu.Unlock()
	return s, nil
}

// Load decodes the image at src.
func (l *Loader) Load(src string) (image.Image, error) {
	l.mu.RLock()
	if img, ok := l.images[src]; ok {
		l.mu.RUnlock()
		return img, nil
	}
	l.mu.RUnlock()

	r, err := l.open(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", shorten(src), err)
	}

	l.mu.Lock()
	l.images[src] = img
	l.mu.Unlock()
	return img, nil
}

// shorten keeps data URIs out of error messages.
func shorten(src string) string {
	if IsDataURI(src) {
		if header, _, ok := strings.Cut(src, ","); ok {
			return header
		}
	}
	return src
}
