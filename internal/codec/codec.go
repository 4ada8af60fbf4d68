// Package codec decodes uploaded raster images and encodes rendered frames.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	// Registered decoders for the formats accepted on upload.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gabriel-vasile/mimetype"
)

// ErrDecodeFailure is returned for empty, unreadable, or non-image input.
var ErrDecodeFailure = errors.New("image decode failure")

// Format is an output encoding.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
)

// DefaultJPEGQuality matches the quality most camera pipelines use.
const DefaultJPEGQuality = 90

// ParseFormat accepts "jpeg", "jpg" or "png" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// ContentType returns the MIME type of encoded output.
func (f Format) ContentType() string {
	if f == PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// IsImage reports whether data sniffs as a raster image.
func IsImage(data []byte) bool {
	return strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}

// Decode parses data with any registered codec and returns the image and its format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecodeFailure)
	}
	if !IsImage(data) {
		return nil, "", fmt.Errorf("%w: content is %s", ErrDecodeFailure, mimetype.Detect(data).String())
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrDecodeFailure)
	}
	return img, format, nil
}

// Encoder turns rendered frames into bytes.
type Encoder struct {
	Format  Format
	Quality int
}

// Encode writes img in the encoder's format.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch e.Format {
	case PNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case JPEG, "":
		quality := e.Quality
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format %q", e.Format)
	}
	return buf.Bytes(), nil
}
