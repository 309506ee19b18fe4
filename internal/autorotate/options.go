package autorotate

import (
	"fmt"
	"time"
)

// DefaultMinimumTextLength is the smallest recognized-text length, in
// characters, that is trusted to pick an orientation. Historically this was
// called the minimum number of words, but it has always been compared
// against a character count.
const DefaultMinimumTextLength = 50

// Options tunes the rotation selector.
type Options struct {
	// MinimumTextLength is the character floor below which the best
	// orientation is ignored and RotationNone is returned.
	MinimumTextLength int
	// RecognizeTimeout bounds each recognition attempt. Zero means no bound.
	RecognizeTimeout time.Duration
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{MinimumTextLength: DefaultMinimumTextLength}
}

func (o Options) validate() error {
	if o.MinimumTextLength < 0 {
		return fmt.Errorf("minimum text length must not be negative, got %d", o.MinimumTextLength)
	}
	if o.RecognizeTimeout < 0 {
		return fmt.Errorf("recognize timeout must not be negative, got %s", o.RecognizeTimeout)
	}
	return nil
}
