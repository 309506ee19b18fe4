package image

import (
	"context"
	"fmt"
	goimage "image"
	"image/png"
	"sync"

	"gocv.io/x/gocv"
)

// MatBitmap is a Bitmap backed by an OpenCV Mat.
type MatBitmap struct {
	mu     sync.RWMutex
	mat    gocv.Mat
	closed bool
}

// NewMatBitmap takes ownership of m.
func NewMatBitmap(m gocv.Mat) *MatBitmap {
	return &MatBitmap{mat: m}
}

// MatFromImage copies a Go image into a new 8-bit, 3-channel Mat.
func MatFromImage(img goimage.Image) (*MatBitmap, error) {
	m, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image to mat: %w", err)
	}
	return NewMatBitmap(m), nil
}

// Bounds implements Bitmap.
func (b *MatBitmap) Bounds() goimage.Rectangle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return goimage.Rectangle{}
	}
	return goimage.Rect(0, 0, b.mat.Cols(), b.mat.Rows())
}

// PNG implements Bitmap.
func (b *MatBitmap) PNG() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrReleased
	}
	if b.mat.Empty() {
		return nil, fmt.Errorf("encode png: empty mat")
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, b.mat)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()
	// GetBytes aliases native memory that Close frees.
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Close releases the Mat. Calling Close more than once is a no-op.
func (b *MatBitmap) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.mat.Close()
}

// nativeStream holds an encode result in OpenCV-owned memory.
type nativeStream struct {
	mu  sync.Mutex
	buf *gocv.NativeByteBuffer
}

func (s *nativeStream) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	return s.buf.GetBytes()
}

func (s *nativeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		s.buf.Close()
		s.buf = nil
	}
	return nil
}

// MatCodec encodes and decodes through OpenCV's imgcodecs.
type MatCodec struct{}

// Decode implements Codec.
func (MatCodec) Decode(ctx context.Context, s Stream) (Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := s.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("decode: empty stream")
	}
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if m.Empty() {
		m.Close()
		return nil, fmt.Errorf("decode: stream is not a recognized image")
	}
	return NewMatBitmap(m), nil
}

// Encode implements Codec.
func (MatCodec) Encode(ctx context.Context, b Bitmap, opts EncodeOptions, r Rotation) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.Valid() {
		return nil, fmt.Errorf("encode: invalid rotation %v", r)
	}
	src, release, err := borrowMat(b)
	if err != nil {
		return nil, err
	}
	defer release()

	rotated := rotateMat(src, r)
	defer rotated.Close()

	buf, err := gocv.IMEncodeWithParams(matFileExt(opts.Format), rotated, matEncodeParams(opts))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", opts.Format, err)
	}
	return &nativeStream{buf: buf}, nil
}

// borrowMat returns a Mat view of b and a func that must be called when done
// with it. Foreign bitmaps are round-tripped through PNG.
func borrowMat(b Bitmap) (gocv.Mat, func(), error) {
	for {
		u, ok := b.(interface{ Unwrap() Bitmap })
		if !ok {
			break
		}
		b = u.Unwrap()
	}
	if mb, ok := b.(*MatBitmap); ok {
		mb.mu.RLock()
		if mb.closed {
			mb.mu.RUnlock()
			return gocv.Mat{}, nil, ErrReleased
		}
		return mb.mat, mb.mu.RUnlock, nil
	}

	data, err := b.PNG()
	if err != nil {
		return gocv.Mat{}, nil, err
	}
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, nil, fmt.Errorf("import bitmap: %w", err)
	}
	return m, func() { m.Close() }, nil
}

// rotateMat returns a new Mat with img turned clockwise by r.
func rotateMat(img gocv.Mat, r Rotation) gocv.Mat {
	result := gocv.NewMat()

	switch r {
	case Rotation90:
		gocv.Rotate(img, &result, gocv.Rotate90Clockwise)
	case Rotation180:
		gocv.Rotate(img, &result, gocv.Rotate180Clockwise)
	case Rotation270:
		gocv.Rotate(img, &result, gocv.Rotate90CounterClockwise)
	default:
		result.Close()
		return img.Clone()
	}

	return result
}

func matFileExt(f Format) gocv.FileExt {
	switch f {
	case FormatJPEG:
		return gocv.JPEGFileExt
	case FormatTIFF:
		return gocv.FileExt(".tiff")
	case FormatBMP:
		return gocv.FileExt(".bmp")
	default:
		return gocv.PNGFileExt
	}
}

func matEncodeParams(opts EncodeOptions) []int {
	switch opts.Format {
	case FormatJPEG:
		if opts.JPEGQuality > 0 {
			return []int{int(gocv.IMWriteJpegQuality), opts.JPEGQuality}
		}
	case FormatPNG:
		return []int{int(gocv.IMWritePngCompression), pngLevel(opts.PNGCompression)}
	}
	return nil
}

// pngLevel maps image/png's named levels onto zlib's 0-9 scale.
func pngLevel(l png.CompressionLevel) int {
	switch l {
	case png.NoCompression:
		return 0
	case png.BestSpeed:
		return 1
	case png.BestCompression:
		return 9
	default:
		return 3
	}
}
