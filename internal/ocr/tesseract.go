package ocr

import (
	"bytes"
	"context"
	"fmt"
	goimage "image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"scanrotate/internal/image"
	"scanrotate/pkg/geometry"
)

// Tesseract is an Engine backed by one gosseract client. The client is not
// safe for concurrent use, so calls are serialized.
type Tesseract struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language Language
	code     string
}

// NewTesseract creates a client for the traineddata named code and runs a
// warm-up recognition so that a missing or broken model fails here rather than
// on first use. tessdata overrides the data directory when non-empty.
func NewTesseract(lang Language, code, tessdata string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if tessdata != "" {
		client.TessdataPrefix = tessdata
	}

	if err := client.SetLanguage(code); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	// Full-page layout analysis without OSD; orientation is what we are
	// trying to find out.
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}

	if err := client.SetImageFromBytes(warmupImage); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set warm-up image: %w", err)
	}
	if _, err := client.Text(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLanguageUnavailable, code, err)
	}

	return &Tesseract{
		client:   client,
		language: lang,
		code:     code,
	}, nil
}

// Language implements Engine.
func (e *Tesseract) Language() Language {
	return e.language
}

// Code returns the traineddata name in use.
func (e *Tesseract) Code() string {
	return e.code
}

// Close releases OCR resources. It waits for a recognition in progress.
func (e *Tesseract) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Recognize implements Engine. The bitmap is encoded before the native call,
// so an expired ctx can return early without the call still reading bmp.
func (e *Tesseract) Recognize(ctx context.Context, bmp image.Bitmap) (Result, error) {
	if bmp == nil || bmp.Bounds().Empty() {
		return Result{}, ErrEmptyImage
	}
	data, err := bmp.PNG()
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.recognizeBytes(data)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("OCR (%s) abandoned: %w", e.Code(), ctx.Err())
	}
}

func (e *Tesseract) recognizeBytes(data []byte) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return Result{}, ErrClosed
	}

	if err := e.client.SetImageFromBytes(data); err != nil {
		return Result{}, fmt.Errorf("failed to set image for %s: %w", e.Code(), err)
	}
	text, err := e.client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("OCR (%s) failed: %w", e.Code(), err)
	}

	// Collapse runs of whitespace so layout does not inflate the score.
	res := Result{Text: strings.Join(strings.Fields(text), " ")}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Boxes only feed diagnostics; the text is what counts.
		return res, nil
	}
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		res.Words = append(res.Words, Word{
			Text:       word,
			Bounds:     geometry.FromImageRect(box.Box),
			Confidence: box.Confidence,
		})
	}
	return res, nil
}

// warmupImage is a small blank page used to force model initialization.
var warmupImage = func() []byte {
	img := goimage.NewGray(goimage.Rect(0, 0, 64, 64))
	draw.Draw(img, img.Bounds(), &goimage.Uniform{C: color.White}, goimage.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()
