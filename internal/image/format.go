package image

import (
	"errors"
	"fmt"
	"image/png"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions or format names the
// codecs cannot encode.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format identifies the encoding a scan is delivered in.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
	FormatTIFF
	FormatBMP
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatTIFF:
		return "tiff"
	case FormatBMP:
		return "bmp"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Ext returns the canonical file extension including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatTIFF:
		return ".tiff"
	case FormatBMP:
		return ".bmp"
	default:
		return ".png"
	}
}

// ParseFormat accepts a format name or file extension, with or without the
// leading dot.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	}
	return FormatPNG, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// EncodeOptions carries the codec settings for one encode.
type EncodeOptions struct {
	Format         Format
	JPEGQuality    int                  // 1-100, JPEG only
	PNGCompression png.CompressionLevel // PNG only
}

// Encoder produces encode settings tuned for a target format.
type Encoder interface {
	Optimized(f Format) EncodeOptions
}

// OptimizedEncoder tunes the intermediate encodes used while probing
// orientations. JPEG scans stay JPEG so recognition sees the same artifacts
// as the final output; everything else goes through fast lossless PNG.
type OptimizedEncoder struct {
	JPEGQuality    int
	PNGCompression png.CompressionLevel
}

// DefaultEncoder returns the settings used by the CLI.
func DefaultEncoder() OptimizedEncoder {
	return OptimizedEncoder{
		JPEGQuality:    90,
		PNGCompression: png.BestSpeed,
	}
}

// Optimized implements Encoder.
func (e OptimizedEncoder) Optimized(f Format) EncodeOptions {
	if f == FormatJPEG {
		q := e.JPEGQuality
		if q <= 0 || q > 100 {
			q = 90
		}
		return EncodeOptions{Format: FormatJPEG, JPEGQuality: q}
	}
	return EncodeOptions{Format: FormatPNG, PNGCompression: e.PNGCompression}
}
