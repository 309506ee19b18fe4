package autorotate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"scanrotate/internal/image"
	"scanrotate/internal/ocr"
	"scanrotate/pkg/geometry"
)

// Candidate is one scored orientation.
type Candidate struct {
	Rotation   image.Rotation
	Score      int     // recognized characters
	Confidence float64 // mean word confidence, 0-100
	Extent     geometry.RectInt
}

func candidateOf(r image.Rotation, res ocr.Result) Candidate {
	return Candidate{
		Rotation:   r,
		Score:      res.Length(),
		Confidence: res.Confidence(),
		Extent:     res.Extent(),
	}
}

func (c Candidate) fields() logrus.Fields {
	return logrus.Fields{
		"rotation":   c.Rotation,
		"score":      c.Score,
		"confidence": fmt.Sprintf("%.1f", c.Confidence),
		"extent":     c.Extent.String(),
	}
}

// attemptError records which orientation and step failed.
type attemptError struct {
	rotation image.Rotation
	step     string
	err      error
}

func (e *attemptError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.step, e.rotation, e.err)
}

func (e *attemptError) Unwrap() error { return e.err }

// DetermineRotation returns the clockwise rotation that makes the text in src
// read upright, or RotationNone when no engine is bound, when the best
// orientation yields fewer than MinimumTextLength characters, or when any
// step fails. Failures are logged and tracked, never returned.
//
// src stays owned by the caller. format is the scan's encoding and only
// selects the settings for the intermediate encodes.
func (s *Service) DetermineRotation(ctx context.Context, src image.Bitmap, format image.Format) image.Rotation {
	l, ok := s.cell.acquire()
	if !ok {
		return image.RotationNone
	}
	defer l.Release()

	log := s.log.WithField("language", l.Language().Tag)

	best, scored, err := s.bestCandidate(ctx, l.Engine(), src, format)
	if err != nil {
		props := map[string]string{
			"language": l.Language().Tag,
			"format":   format.String(),
			"scored":   strconv.Itoa(scored),
		}
		var ae *attemptError
		if errors.As(err, &ae) {
			props["rotation"] = ae.rotation.String()
			props["step"] = ae.step
		}
		if scored > 0 {
			props["best_rotation"] = best.Rotation.String()
			props["best_score"] = strconv.Itoa(best.Score)
			props["best_confidence"] = fmt.Sprintf("%.1f", best.Confidence)
			props["best_extent"] = best.Extent.String()
		}
		log.WithError(err).Error("Failed to determine page orientation")
		s.tracker.TrackError(err, props)
		return image.RotationNone
	}

	if best.Score < s.opts.MinimumTextLength {
		log.WithFields(best.fields()).Debug("Too little text to trust any orientation")
		return image.RotationNone
	}
	log.WithFields(best.fields()).Debug("Orientation determined")
	return best.Rotation
}

// bestCandidate scores all four orientations in order. A later orientation
// wins only with a strictly higher score. On failure it still returns the
// best of the scored orientations and how many were scored.
func (s *Service) bestCandidate(ctx context.Context, eng ocr.Engine, src image.Bitmap, format image.Format) (Candidate, int, error) {
	res, err := s.recognize(ctx, eng, src)
	if err != nil {
		return Candidate{}, 0, &attemptError{image.RotationNone, "recognize", err}
	}
	best := candidateOf(image.RotationNone, res)
	s.log.WithFields(best.fields()).Debug("Orientation scored")
	scored := 1

	opts := s.encoder.Optimized(format)
	for _, r := range image.Rotations[1:] {
		c, err := s.scoreRotated(ctx, eng, src, opts, r)
		if err != nil {
			return best, scored, err
		}
		scored++
		s.log.WithFields(c.fields()).Debug("Orientation scored")
		if c.Score > best.Score {
			best = c
		}
	}
	return best, scored, nil
}

// scoreRotated renders src at r through the codec and recognizes the result.
// The intermediate stream and bitmap are released on every path.
func (s *Service) scoreRotated(ctx context.Context, eng ocr.Engine, src image.Bitmap, opts image.EncodeOptions, r image.Rotation) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, &attemptError{r, "encode", err}
	}
	stream, err := s.codec.Encode(ctx, src, opts, r)
	if err != nil {
		return Candidate{}, &attemptError{r, "encode", err}
	}
	defer stream.Close()

	bmp, err := s.codec.Decode(ctx, stream)
	if err != nil {
		return Candidate{}, &attemptError{r, "decode", err}
	}
	defer bmp.Close()

	res, err := s.recognize(ctx, eng, bmp)
	if err != nil {
		return Candidate{}, &attemptError{r, "recognize", err}
	}
	return candidateOf(r, res), nil
}

func (s *Service) recognize(ctx context.Context, eng ocr.Engine, bmp image.Bitmap) (ocr.Result, error) {
	if s.opts.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RecognizeTimeout)
		defer cancel()
	}
	return eng.Recognize(ctx, bmp)
}
