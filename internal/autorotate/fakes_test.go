package autorotate

import (
	"context"
	"errors"
	goimage "image"
	"strings"
	"sync"

	"scanrotate/internal/image"
	"scanrotate/internal/ocr"
	"scanrotate/internal/settings"
	"scanrotate/pkg/geometry"
)

// fakeBitmap is a page whose only content is how far it has been turned.
type fakeBitmap struct {
	turned image.Rotation
	closed bool
}

func (b *fakeBitmap) Bounds() goimage.Rectangle { return goimage.Rect(0, 0, 100, 140) }

func (b *fakeBitmap) PNG() ([]byte, error) {
	if b.closed {
		return nil, image.ErrReleased
	}
	return []byte{byte(b.turned)}, nil
}

func (b *fakeBitmap) Close() error {
	b.closed = true
	return nil
}

func turnedOf(bmp image.Bitmap) image.Rotation {
	for {
		switch b := bmp.(type) {
		case *fakeBitmap:
			return b.turned
		case interface{ Unwrap() image.Bitmap }:
			bmp = b.Unwrap()
		default:
			panic("unexpected bitmap type")
		}
	}
}

type fakeStream struct {
	turned image.Rotation
}

func (s *fakeStream) Bytes() []byte { return []byte{byte(s.turned)} }
func (s *fakeStream) Close() error  { return nil }

// fakeCodec applies rotations by arithmetic and fails on request.
type fakeCodec struct {
	mu         sync.Mutex
	encodes    []image.Rotation
	failEncode map[image.Rotation]error
	failDecode map[image.Rotation]error
	opts       []image.EncodeOptions
}

func (c *fakeCodec) Encode(_ context.Context, b image.Bitmap, opts image.EncodeOptions, r image.Rotation) (image.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encodes = append(c.encodes, r)
	c.opts = append(c.opts, opts)
	if err := c.failEncode[r]; err != nil {
		return nil, err
	}
	turned := image.Rotation((int(turnedOf(b)) + int(r)) % 4)
	return &fakeStream{turned: turned}, nil
}

func (c *fakeCodec) Decode(_ context.Context, s image.Stream) (image.Bitmap, error) {
	fs := s.(*fakeStream)
	if err := c.failDecode[fs.turned]; err != nil {
		return nil, err
	}
	return &fakeBitmap{turned: fs.turned}, nil
}

func (c *fakeCodec) encodeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encodes)
}

// fakeEngine reports scores[r] characters for a page turned by r.
type fakeEngine struct {
	lang   ocr.Language
	scores [4]int
	// confidence, when non-zero for r, adds one word box to the result.
	confidence [4]float64
	fail       map[image.Rotation]error
	// block, when set, is called at the start of Recognize.
	block func(ctx context.Context) error

	mu     sync.Mutex
	closed bool
	seen   []image.Rotation
}

func (e *fakeEngine) Language() ocr.Language { return e.lang }

func (e *fakeEngine) Recognize(ctx context.Context, bmp image.Bitmap) (ocr.Result, error) {
	if e.block != nil {
		if err := e.block(ctx); err != nil {
			return ocr.Result{}, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ocr.Result{}, ocr.ErrClosed
	}
	r := turnedOf(bmp)
	e.seen = append(e.seen, r)
	if err := e.fail[r]; err != nil {
		return ocr.Result{}, err
	}
	res := ocr.Result{Text: strings.Repeat("a", e.scores[r])}
	if c := e.confidence[r]; c > 0 {
		res.Words = []ocr.Word{{
			Text:       res.Text,
			Confidence: c,
			Bounds:     geometry.RectInt{X: 10 * int(r), Y: 5, Width: e.scores[r], Height: 12},
		}}
	}
	return res, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *fakeEngine) seenRotations() []image.Rotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]image.Rotation(nil), e.seen...)
}

// fakeFactory loads only the tags in installed.
type fakeFactory struct {
	mu         sync.Mutex
	installed  map[string]bool
	defaultTag string
	catalog    []ocr.Language
	scores     [4]int
	// onAttempt, when set, runs at the start of every creation attempt
	// without the factory lock held.
	onAttempt func(tag string)

	attempts []string
	created  []*fakeEngine
}

const defaultAttempt = "<default>"

func newFakeFactory(installed ...string) *fakeFactory {
	f := &fakeFactory{installed: make(map[string]bool)}
	for _, tag := range installed {
		f.installed[tag] = true
	}
	return f
}

func (f *fakeFactory) TryCreate(tag string) (ocr.Engine, bool) {
	if f.onAttempt != nil {
		f.onAttempt(tag)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, tag)
	return f.create(tag)
}

func (f *fakeFactory) create(tag string) (ocr.Engine, bool) {
	if !f.installed[tag] {
		return nil, false
	}
	eng := &fakeEngine{lang: ocr.Language{Tag: tag, DisplayName: tag}, scores: f.scores}
	f.created = append(f.created, eng)
	return eng, true
}

func (f *fakeFactory) TryCreateDefault() (ocr.Engine, bool) {
	if f.onAttempt != nil {
		f.onAttempt(defaultAttempt)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, defaultAttempt)
	if f.defaultTag == "" {
		return nil, false
	}
	return f.create(f.defaultTag)
}

func (f *fakeFactory) AvailableLanguages() []ocr.Language {
	return f.catalog
}

func (f *fakeFactory) Attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

func (f *fakeFactory) resetAttempts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = nil
}

func (f *fakeFactory) lastEngine() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// recordingStore counts writes to the language key.
type recordingStore struct {
	*settings.Prefs
	mu     sync.Mutex
	writes []string
}

func newRecordingStore(configured string) *recordingStore {
	p := settings.New(nil)
	if configured != "" {
		p.SetString(settings.KeyAutoRotateLanguage, configured)
	}
	return &recordingStore{Prefs: p}
}

func (s *recordingStore) SetString(key, value string) {
	if key == settings.KeyAutoRotateLanguage {
		s.mu.Lock()
		s.writes = append(s.writes, value)
		s.mu.Unlock()
	}
	s.Prefs.SetString(key, value)
}

func (s *recordingStore) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func catalog(tags ...string) []ocr.Language {
	langs := make([]ocr.Language, len(tags))
	for i, tag := range tags {
		langs[i] = ocr.Language{Tag: tag, DisplayName: tag}
	}
	return langs
}

var errCodec = errors.New("codec exploded")
