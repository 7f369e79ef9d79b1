// Package stitch merges accepted capture tiles into one or more seamless
// canvases: cropping the repeated chrome band, removing scroll overlap, and
// splitting at the safe raster ceiling.
package stitch

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/hazyhaar/longshot/internal/tile"
)

// Options tune compositing.
type Options struct {
	// DetectOverlap enables per-pair row-signature overlap removal.
	DetectOverlap bool
	// MaxOverlap caps the overlap scan in rows.
	MaxOverlap int
	// Tolerance is the per-channel delta for the tolerance-bounded
	// overlap pass. Zero = exact rows only.
	Tolerance int
	// ChromeCrop is the measured chrome band height, cropped from every
	// tile after the first so fixed chrome appears exactly once.
	ChromeCrop int
	// Ceiling is the maximum canvas height; taller composites are split
	// into vertically disjoint parts. Zero = unlimited.
	Ceiling int
}

// Composite is one stitched canvas. Seams are the row offsets within Img
// where a tile's contribution begins; the size fitter uses them as batch
// cut points.
type Composite struct {
	Img   *image.RGBA
	Seams []int
}

// Height returns the composite's pixel height.
func (c Composite) Height() int { return c.Img.Bounds().Dy() }

// segment is one tile's contribution to the composite.
type segment struct {
	img  image.Image
	srcY int // first source row drawn
	rows int
}

// Compose stitches tiles top to bottom. The result covers every tile row
// exactly once: no gaps, no double-coverage.
func Compose(tiles []tile.Tile, opt Options) ([]Composite, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("stitch: no tiles")
	}

	width := 0
	for _, t := range tiles {
		if w := t.Width(); w > width {
			width = w
		}
	}

	segs := make([]segment, 0, len(tiles))
	segs = append(segs, segment{img: tiles[0].Img, srcY: 0, rows: tiles[0].Height()})

	for i := 1; i < len(tiles); i++ {
		cur := tiles[i].Img
		skip := opt.ChromeCrop
		if skip >= tiles[i].Height() {
			skip = tiles[i].Height() - 1
		}

		if opt.DetectOverlap {
			prev := segs[len(segs)-1]
			skip += Overlap(cropTop(prev.img, prev.srcY), cropTop(cur, skip),
				opt.MaxOverlap, opt.Tolerance)
		}
		if rows := tiles[i].Height() - skip; rows > 0 {
			segs = append(segs, segment{img: cur, srcY: skip, rows: rows})
		}
	}

	totalRows := 0
	for _, s := range segs {
		totalRows += s.rows
	}

	if opt.Ceiling <= 0 || totalRows <= opt.Ceiling {
		return []Composite{render(segs, width, 0, totalRows)}, nil
	}

	// Split into disjoint vertical parts, slicing across tile boundaries
	// where needed: a tile may contribute to two consecutive parts.
	var parts []Composite
	for start := 0; start < totalRows; start += opt.Ceiling {
		end := start + opt.Ceiling
		if end > totalRows {
			end = totalRows
		}
		parts = append(parts, render(segs, width, start, end))
	}
	return parts, nil
}

// render draws composite rows [start, end) into a fresh canvas.
func render(segs []segment, width, start, end int) Composite {
	out := image.NewRGBA(image.Rect(0, 0, width, end-start))
	comp := Composite{Img: out}

	segTop := 0 // composite row where the current segment begins
	for _, s := range segs {
		segBot := segTop + s.rows
		if segBot <= start || segTop >= end {
			segTop = segBot
			continue
		}

		// Intersection of the segment with [start, end).
		from := segTop
		if from < start {
			from = start
		}
		to := segBot
		if to > end {
			to = end
		}

		dstY := from - start
		srcY := s.srcY + (from - segTop)
		b := s.img.Bounds()
		draw.Draw(out,
			image.Rect(0, dstY, b.Dx(), dstY+(to-from)),
			s.img,
			image.Pt(b.Min.X, b.Min.Y+srcY),
			draw.Src)

		if segTop >= start {
			comp.Seams = append(comp.Seams, segTop-start)
		} else if dstY == 0 {
			// Part begins mid-tile.
			comp.Seams = append(comp.Seams, 0)
		}
		segTop = segBot
	}
	return comp
}

// cropTop returns img with the first skip rows removed.
func cropTop(img image.Image, skip int) image.Image {
	if skip <= 0 {
		return img
	}
	b := img.Bounds()
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(image.Rect(b.Min.X, b.Min.Y+skip, b.Max.X, b.Max.Y))
	}
	// Fallback copy for exotic image types.
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()-skip))
	draw.Draw(out, out.Bounds(), img, image.Pt(b.Min.X, b.Min.Y+skip), draw.Src)
	return out
}
