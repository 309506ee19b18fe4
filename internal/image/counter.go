package image

import (
	"context"
	"sync"
	"sync/atomic"
)

// Counter wraps a Codec and tracks how many of the streams and bitmaps it
// handed out are still open.
type Counter struct {
	Codec Codec

	bitmaps atomic.Int64
	streams atomic.Int64
}

// NewCounter wraps c.
func NewCounter(c Codec) *Counter {
	return &Counter{Codec: c}
}

// Decode implements Codec.
func (c *Counter) Decode(ctx context.Context, s Stream) (Bitmap, error) {
	b, err := c.Codec.Decode(ctx, unwrapStream(s))
	if err != nil {
		return nil, err
	}
	c.bitmaps.Add(1)
	return &countedBitmap{Bitmap: b, n: &c.bitmaps}, nil
}

// Encode implements Codec.
func (c *Counter) Encode(ctx context.Context, b Bitmap, opts EncodeOptions, r Rotation) (Stream, error) {
	s, err := c.Codec.Encode(ctx, b, opts, r)
	if err != nil {
		return nil, err
	}
	c.streams.Add(1)
	return &countedStream{Stream: s, n: &c.streams}, nil
}

// OpenBitmaps returns the number of decoded bitmaps not yet closed.
func (c *Counter) OpenBitmaps() int64 { return c.bitmaps.Load() }

// OpenStreams returns the number of encoded streams not yet closed.
func (c *Counter) OpenStreams() int64 { return c.streams.Load() }

// Outstanding returns OpenBitmaps + OpenStreams.
func (c *Counter) Outstanding() int64 { return c.OpenBitmaps() + c.OpenStreams() }

type countedBitmap struct {
	Bitmap
	once sync.Once
	n    *atomic.Int64
}

func (b *countedBitmap) Unwrap() Bitmap { return b.Bitmap }

func (b *countedBitmap) Close() error {
	err := b.Bitmap.Close()
	b.once.Do(func() { b.n.Add(-1) })
	return err
}

type countedStream struct {
	Stream
	once sync.Once
	n    *atomic.Int64
}

func (s *countedStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(func() { s.n.Add(-1) })
	return err
}

func unwrapStream(s Stream) Stream {
	if cs, ok := s.(*countedStream); ok {
		return cs.Stream
	}
	return s
}
