// Package intake turns user uploads into the JPEG payload sent to the
// classifiers and the preview shown next to the results.
package intake

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	// MaxFileSize is the largest accepted upload, per image.
	MaxFileSize = 10 * 1024 * 1024

	// JPEGQuality is used when re-encoding uploads for the classifiers.
	JPEGQuality = 90

	// PreviewSize bounds the longest edge of the preview thumbnail.
	PreviewSize = 480

	// MaxPixels bounds width*height of an upload before it is decoded.
	MaxPixels = 64 << 20
)

// AllowedExtensions are the file types the upload form accepts.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrEmpty           = errors.New("empty upload")
	ErrTooManyPixels   = errors.New("image dimensions too large")
)

// Upload is a file as received from the browser or read from disk. Err is
// set when the file could not be read or downloaded; Process reports it as
// that upload's failure.
type Upload struct {
	Filename string
	Data     []byte
	Err      error
}

// Image is a decoded upload. Only JPEG and Preview are meant to outlive the
// request; the bitmap is dropped once they are produced.
type Image struct {
	Filename string
	Format   string
	Width    int
	Height   int
	Checksum string

	// JPEG is the payload sent to the classifiers.
	JPEG []byte
	// Preview is a downsized JPEG for display.
	Preview []byte
}

// PreviewDataURI returns the preview as an inline data URI.
func (img *Image) PreviewDataURI() string {
	if len(img.Preview) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img.Preview)
}

// AcceptedExtension reports whether the filename has one of AllowedExtensions.
func AcceptedExtension(filename string) bool {
	return slices.Contains(AllowedExtensions, strings.ToLower(filepath.Ext(filename)))
}

// Process validates, decodes and re-encodes an upload.
func Process(u Upload) (*Image, error) {
	if u.Err != nil {
		return nil, u.Err
	}
	if !AcceptedExtension(u.Filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(u.Filename))
	}
	if len(u.Data) == 0 {
		return nil, ErrEmpty
	}
	if len(u.Data) > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(u.Data), MaxFileSize)
	}

	// Compressed formats can declare huge bitmaps in a small file.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(u.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", u.Filename, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d (max %d pixels)", ErrTooManyPixels, cfg.Width, cfg.Height, MaxPixels)
	}

	decoded, format, err := image.Decode(bytes.NewReader(u.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", u.Filename, err)
	}

	payload, err := EncodeJPEG(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode %s: %w", u.Filename, err)
	}

	preview, err := EncodeJPEG(resize.Thumbnail(PreviewSize, PreviewSize, decoded, resize.Lanczos3))
	if err != nil {
		return nil, fmt.Errorf("failed to build preview for %s: %w", u.Filename, err)
	}

	bounds := decoded.Bounds()
	return &Image{
		Filename: u.Filename,
		Format:   format,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Checksum: checksum(u.Data),
		JPEG:     payload,
		Preview:  preview,
	}, nil
}

// EncodeJPEG encodes any image as JPEG. Transparent pixels are flattened
// onto white since JPEG has no alpha channel.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}

func checksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
