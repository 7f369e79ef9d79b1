// Package fit encodes stitched composites under a byte budget. A
// deterministic ladder of format/quality attempts is tried per canvas;
// canvases that cannot fit whole are split into contiguous row batches at
// tile seams, and a lone over-budget batch is downscaled as a last resort.
package fit

import (
	"image"
	"log/slog"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/hazyhaar/longshot/internal/stitch"
)

// Artifact is one final deliverable.
type Artifact struct {
	Bytes    []byte
	MIME     string
	Ext      string
	Filename string
	Part     int // 1-based; 0 when the session produced a single artifact
	Width    int
	Height   int
	// Oversized marks a last-resort artifact that exceeds the budget even
	// after downscaling. Logged, never silent.
	Oversized bool
}

// Options tune the fitter.
type Options struct {
	// Budget is the hard byte ceiling per artifact.
	Budget int
	// JPEGQualities is the lossy ladder after the lossless attempt.
	JPEGQualities []int
	// Origin and CapturedAt feed the deterministic filenames.
	Origin     string
	CapturedAt time.Time

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Budget <= 0 {
		o.Budget = 19 << 20
	}
	if len(o.JPEGQualities) == 0 {
		o.JPEGQualities = []int{90, 65}
	}
	if o.CapturedAt.IsZero() {
		o.CapturedAt = time.Now()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Fit encodes every composite part under the budget and names the results.
func Fit(parts []stitch.Composite, opt Options) ([]Artifact, error) {
	opt.defaults()
	ladder := Ladder(opt.JPEGQualities)

	var arts []Artifact
	for _, part := range parts {
		got, err := fitPart(part, ladder, opt)
		if err != nil {
			return nil, err
		}
		arts = append(arts, got...)
	}

	total := len(arts)
	for i := range arts {
		part := 0
		if total > 1 {
			part = i + 1
		}
		arts[i].Part = part
		arts[i].Filename = Filename(opt.Origin, opt.CapturedAt, i+1, total, arts[i].Ext)
	}
	return arts, nil
}

// fitPart runs the ladder on one canvas, splitting at seams when even the
// lowest rung exceeds the budget.
func fitPart(part stitch.Composite, ladder []Rung, opt Options) ([]Artifact, error) {
	data, rung, err := encodeUnder(part.Img, ladder, opt.Budget)
	if err != nil {
		return nil, err
	}
	if data != nil {
		return []Artifact{makeArtifact(data, rung, part.Img, false)}, nil
	}

	opt.Logger.Info("fit: canvas over budget at every rung, splitting",
		"height", part.Height(), "budget", opt.Budget)
	return splitFit(part, ladder, opt)
}

// splitFit greedily grows contiguous row batches between tile seams: a batch
// absorbs the next segment while its test encoding (at the lowest rung)
// stays within budget, then the finalized batch re-runs the full ladder.
func splitFit(part stitch.Composite, ladder []Rung, opt Options) ([]Artifact, error) {
	cuts := batchCuts(part)
	lowest := ladder[len(ladder)-1]

	var arts []Artifact
	i := 0
	for i < len(cuts)-1 {
		// Can the first segment alone fit at the lowest rung?
		single := rows(part.Img, cuts[i], cuts[i+1])
		data, err := encodeAt(single, lowest)
		if err != nil {
			return nil, err
		}
		if len(data) > opt.Budget {
			art, err := downscaleFit(single, lowest, opt)
			if err != nil {
				return nil, err
			}
			arts = append(arts, art)
			i++
			continue
		}

		// Grow while the next segment still fits.
		j := i + 1
		for j < len(cuts)-1 {
			candidate := rows(part.Img, cuts[i], cuts[j+1])
			data, err := encodeAt(candidate, lowest)
			if err != nil {
				return nil, err
			}
			if len(data) > opt.Budget {
				break
			}
			j++
		}

		batch := rows(part.Img, cuts[i], cuts[j])
		data, rung, err := encodeUnder(batch, ladder, opt.Budget)
		if err != nil {
			return nil, err
		}
		if data == nil {
			// The lowest rung fit during growth, so this cannot miss;
			// encode there directly if a higher rung regressed.
			data, err = encodeAt(batch, lowest)
			if err != nil {
				return nil, err
			}
			rung = lowest
		}
		arts = append(arts, makeArtifact(data, rung, batch, false))
		i = j
	}
	return arts, nil
}

// downscaleFit halves a batch that alone exceeds the budget at the lowest
// quality. If it still exceeds after scaling, it is emitted anyway with a
// recorded warning: best effort, not guaranteed.
func downscaleFit(img image.Image, lowest Rung, opt Options) (Artifact, error) {
	b := img.Bounds()
	scaled := image.NewRGBA(image.Rect(0, 0, b.Dx()/2, b.Dy()/2))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)

	data, err := encodeAt(scaled, lowest)
	if err != nil {
		return Artifact{}, err
	}
	oversized := len(data) > opt.Budget
	if oversized {
		opt.Logger.Warn("fit: artifact exceeds budget even after downscale",
			"size", len(data), "budget", opt.Budget)
	}
	return makeArtifact(data, lowest, scaled, oversized), nil
}

// batchCuts returns seam rows plus the bottom row, deduplicated and with a
// leading zero guaranteed.
func batchCuts(part stitch.Composite) []int {
	cuts := []int{0}
	for _, s := range part.Seams {
		if s > cuts[len(cuts)-1] {
			cuts = append(cuts, s)
		}
	}
	if h := part.Height(); h > cuts[len(cuts)-1] {
		cuts = append(cuts, h)
	}
	return cuts
}

// rows extracts composite rows [from, to).
func rows(img *image.RGBA, from, to int) image.Image {
	b := img.Bounds()
	return img.SubImage(image.Rect(b.Min.X, b.Min.Y+from, b.Max.X, b.Min.Y+to))
}

func makeArtifact(data []byte, rung Rung, img image.Image, oversized bool) Artifact {
	return Artifact{
		Bytes:     data,
		MIME:      rung.Codec.MIME(),
		Ext:       rung.Codec.Ext(),
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
		Oversized: oversized,
	}
}
