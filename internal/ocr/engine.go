// Package ocr provides the text-recognition engines used as an orientation
// oracle, and the factory that creates them per language.
package ocr

import (
	"context"
	"errors"

	"scanrotate/internal/image"
)

var (
	// ErrLanguageUnavailable means no model for the language is installed.
	ErrLanguageUnavailable = errors.New("recognizer language unavailable")
	// ErrEmptyImage is returned for bitmaps without pixels.
	ErrEmptyImage = errors.New("empty image")
	// ErrClosed is returned by Recognize after Close.
	ErrClosed = errors.New("recognition engine closed")
)

// Engine recognizes text in one language.
type Engine interface {
	Language() Language
	// Recognize extracts text from bmp. Implementations must not retain bmp
	// after returning, including when ctx expires first.
	Recognize(ctx context.Context, bmp image.Bitmap) (Result, error)
	Close() error
}

// Factory creates engines. Creation failures are reported as ok=false: a
// missing language model is an expected condition on many hosts.
type Factory interface {
	TryCreate(tag string) (Engine, bool)
	// TryCreateDefault creates an engine for the host's preferred language.
	TryCreateDefault() (Engine, bool)
	// AvailableLanguages lists installed languages in catalog order.
	AvailableLanguages() []Language
}
