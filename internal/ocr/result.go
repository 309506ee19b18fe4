package ocr

import (
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"

	"scanrotate/pkg/geometry"
)

// Word is a single recognized token.
type Word struct {
	Text       string
	Bounds     geometry.RectInt
	Confidence float64 // 0-100 as reported by the engine
}

// Result is the outcome of one recognition pass.
type Result struct {
	Text  string
	Words []Word
}

// Length is the number of characters in Text. It is the orientation score.
func (r Result) Length() int {
	return utf8.RuneCountInString(r.Text)
}

// Confidence returns the mean word confidence, or 0 without words.
func (r Result) Confidence() float64 {
	if len(r.Words) == 0 {
		return 0
	}
	confs := make([]float64, len(r.Words))
	for i, w := range r.Words {
		confs[i] = w.Confidence
	}
	return stat.Mean(confs, nil)
}

// Extent returns the union of all word boxes.
func (r Result) Extent() geometry.RectInt {
	var ext geometry.RectInt
	for _, w := range r.Words {
		ext = ext.Union(w.Bounds)
	}
	return ext
}
