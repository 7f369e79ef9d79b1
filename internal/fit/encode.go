package fit

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// Codec encodes a canvas into one output format.
type Codec interface {
	Encode(img image.Image, quality int) ([]byte, error)
	MIME() string
	Ext() string
}

type pngCodec struct{}

func (pngCodec) Encode(img image.Image, _ int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (pngCodec) MIME() string { return "image/png" }
func (pngCodec) Ext() string  { return "png" }

type jpegCodec struct{}

func (jpegCodec) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (jpegCodec) MIME() string { return "image/jpeg" }
func (jpegCodec) Ext() string  { return "jpg" }

// Rung is one step of the fallback ladder.
type Rung struct {
	Codec   Codec
	Quality int
}

// Ladder builds the deterministic fallback ladder: lossless PNG first, then
// the configured JPEG qualities in order.
func Ladder(jpegQualities []int) []Rung {
	rungs := []Rung{{Codec: pngCodec{}}}
	for _, q := range jpegQualities {
		rungs = append(rungs, Rung{Codec: jpegCodec{}, Quality: q})
	}
	return rungs
}

// EncodeError means no ladder rung could produce bytes at all. Size overruns
// are not EncodeErrors; they fall through to splitting.
type EncodeError struct {
	Last error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("fit: every encoder failed, last: %v", e.Last)
}

func (e *EncodeError) Unwrap() error { return e.Last }

// encodeUnder walks the ladder and returns the first encoding within budget.
// Returns (nil, zero rung, nil) when every rung encodes fine but exceeds the
// budget, and *EncodeError when no rung produces bytes.
func encodeUnder(img image.Image, ladder []Rung, budget int) ([]byte, Rung, error) {
	var last error
	failed := 0
	for _, r := range ladder {
		data, err := r.Codec.Encode(img, r.Quality)
		if err != nil || len(data) == 0 {
			if err == nil {
				err = fmt.Errorf("%s encoder returned no data", r.Codec.Ext())
			}
			last = err
			failed++
			continue
		}
		if len(data) <= budget {
			return data, r, nil
		}
	}
	if failed == len(ladder) {
		return nil, Rung{}, &EncodeError{Last: last}
	}
	return nil, Rung{}, nil
}

// encodeAt encodes with a single rung regardless of budget.
func encodeAt(img image.Image, r Rung) ([]byte, error) {
	data, err := r.Codec.Encode(img, r.Quality)
	if err != nil {
		return nil, &EncodeError{Last: err}
	}
	if len(data) == 0 {
		return nil, &EncodeError{Last: fmt.Errorf("%s encoder returned no data", r.Codec.Ext())}
	}
	return data, nil
}
