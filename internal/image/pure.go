package image

import (
	"bytes"
	"context"
	"fmt"
	goimage "image"
	"image/png"
	"sync"

	"github.com/disintegration/imaging"
)

// PureBitmap is a Bitmap over a Go image. It needs no native memory, but
// still follows the Close discipline so codecs are interchangeable.
type PureBitmap struct {
	mu  sync.RWMutex
	img goimage.Image
}

// NewPureBitmap wraps img.
func NewPureBitmap(img goimage.Image) *PureBitmap {
	return &PureBitmap{img: img}
}

// Image returns the wrapped image, or ErrReleased after Close.
func (b *PureBitmap) Image() (goimage.Image, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return nil, ErrReleased
	}
	return b.img, nil
}

// Bounds implements Bitmap.
func (b *PureBitmap) Bounds() goimage.Rectangle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return goimage.Rectangle{}
	}
	return b.img.Bounds()
}

// PNG implements Bitmap.
func (b *PureBitmap) PNG() ([]byte, error) {
	img, err := b.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Close implements Bitmap.
func (b *PureBitmap) Close() error {
	b.mu.Lock()
	b.img = nil
	b.mu.Unlock()
	return nil
}

// PureCodec encodes and decodes in Go using imaging. It is slower than
// MatCodec but works without OpenCV.
type PureCodec struct{}

// Decode implements Codec.
func (PureCodec) Decode(ctx context.Context, s Stream) (Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := s.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("decode: empty stream")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return NewPureBitmap(img), nil
}

// Encode implements Codec.
func (PureCodec) Encode(ctx context.Context, b Bitmap, opts EncodeOptions, r Rotation) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.Valid() {
		return nil, fmt.Errorf("encode: invalid rotation %v", r)
	}
	img, err := goImage(b)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rotateImage(img, r), imagingFormat(opts.Format), imagingOptions(opts)...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", opts.Format, err)
	}
	return NewStream(buf.Bytes()), nil
}

func goImage(b Bitmap) (goimage.Image, error) {
	for {
		u, ok := b.(interface{ Unwrap() Bitmap })
		if !ok {
			break
		}
		b = u.Unwrap()
	}
	if pb, ok := b.(*PureBitmap); ok {
		return pb.Image()
	}
	data, err := b.PNG()
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("import bitmap: %w", err)
	}
	return img, nil
}

// rotateImage turns img clockwise by r. imaging rotates counter-clockwise.
func rotateImage(img goimage.Image, r Rotation) goimage.Image {
	switch r {
	case Rotation90:
		return imaging.Rotate270(img)
	case Rotation180:
		return imaging.Rotate180(img)
	case Rotation270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func imagingFormat(f Format) imaging.Format {
	switch f {
	case FormatJPEG:
		return imaging.JPEG
	case FormatTIFF:
		return imaging.TIFF
	case FormatBMP:
		return imaging.BMP
	default:
		return imaging.PNG
	}
}

func imagingOptions(opts EncodeOptions) []imaging.EncodeOption {
	switch opts.Format {
	case FormatJPEG:
		if opts.JPEGQuality > 0 {
			return []imaging.EncodeOption{imaging.JPEGQuality(opts.JPEGQuality)}
		}
	case FormatPNG:
		return []imaging.EncodeOption{imaging.PNGCompressionLevel(opts.PNGCompression)}
	}
	return nil
}
