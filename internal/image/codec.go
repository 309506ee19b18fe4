package image

import (
	"context"
	"errors"
	goimage "image"
)

// ErrReleased is returned when a bitmap or stream is used after Close.
var ErrReleased = errors.New("image resource already released")

// Bitmap is a decoded image buffer. Bitmaps may hold native memory and must
// be closed by whoever obtained them.
type Bitmap interface {
	Bounds() goimage.Rectangle
	// PNG returns a lossless encoding of the bitmap as-is, which is what the
	// recognition engine consumes.
	PNG() ([]byte, error)
	Close() error
}

// Stream is an encoded image held in memory.
type Stream interface {
	Bytes() []byte
	Close() error
}

// Codec decodes streams into bitmaps and encodes bitmaps, optionally rotated,
// into streams.
type Codec interface {
	Decode(ctx context.Context, s Stream) (Bitmap, error)
	Encode(ctx context.Context, b Bitmap, opts EncodeOptions, r Rotation) (Stream, error)
}

// memStream is a Stream over a Go byte slice.
type memStream struct {
	data []byte
}

// NewStream wraps encoded bytes as a Stream. The slice is not copied.
func NewStream(data []byte) Stream {
	return &memStream{data: data}
}

func (s *memStream) Bytes() []byte { return s.data }

func (s *memStream) Close() error {
	s.data = nil
	return nil
}
