package loop

import (
	"crypto/sha256"
	"encoding/binary"
	"image"
	"math/bits"
)

// Comparer judges whether a freshly captured tile duplicates the previous
// accepted one. Duplicates show up near the page's natural bottom, where
// the scroll stops moving but the loop keeps requesting positions.
type Comparer struct {
	// PixelTol is the per-channel delta under which two sampled pixels
	// count as equal.
	PixelTol int
	// Stride is the sampling step in pixels for the tolerance pass.
	Stride int
	// HammingMax is the dHash distance at or under which tiles count as
	// near-duplicates. Empirically tuned; see configuration.
	HammingMax int
}

// Duplicate reports whether b duplicates a. Three signatures, cheapest
// verdict first: exact pixel hash, sampled tolerance comparison, then a
// perceptual hash with a Hamming-distance threshold.
func (c Comparer) Duplicate(a, b image.Image) bool {
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return false
	}
	if ExactHash(a) == ExactHash(b) {
		return true
	}
	if SampledEqual(a, b, c.Stride, c.PixelTol) {
		return true
	}
	return c.perceptualMatch(a, b)
}

// perceptualMatch is the dHash rung. dHash encodes only luminance structure:
// a flat tile hashes to zero, and two equal-brightness tiles of different hue
// hash alike. A Hamming match therefore only counts when both tiles carry
// texture and their mean colors agree within PixelTol.
func (c Comparer) perceptualMatch(a, b image.Image) bool {
	ha, hb := DHash(a), DHash(b)
	if ha == 0 || hb == 0 {
		return false
	}
	if Hamming(ha, hb) > c.HammingMax {
		return false
	}
	ar, ag, ab := meanRGB(a, c.Stride)
	br, bg, bb := meanRGB(b, c.Stride)
	tol := float64(c.PixelTol)
	return abs(ar-br) <= tol && abs(ag-bg) <= tol && abs(ab-bb) <= tol
}

// meanRGB averages every stride-th pixel, returning 8-bit channel means.
func meanRGB(img image.Image, stride int) (r, g, b float64) {
	if stride <= 0 {
		stride = 16
	}
	bounds := img.Bounds()
	var n float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += float64(pr >> 8)
			g += float64(pg >> 8)
			b += float64(pb >> 8)
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return r / n, g / n, b / n
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// ExactHash digests every pixel of the image.
func ExactHash(img image.Image) [32]byte {
	h := sha256.New()
	if rgba, ok := img.(*image.RGBA); ok {
		h.Write(rgba.Pix)
		return [32]byte(h.Sum(nil))
	}

	bounds := img.Bounds()
	var px [8]byte
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			binary.BigEndian.PutUint16(px[0:], uint16(r))
			binary.BigEndian.PutUint16(px[2:], uint16(g))
			binary.BigEndian.PutUint16(px[4:], uint16(b))
			binary.BigEndian.PutUint16(px[6:], uint16(a))
			h.Write(px[:])
		}
	}
	return [32]byte(h.Sum(nil))
}

// SampledEqual compares every stride-th pixel of both images, allowing a
// per-channel delta of tol. Catches tiles that differ only in a blinking
// cursor or an antialiasing wobble.
func SampledEqual(a, b image.Image, stride, tol int) bool {
	if stride <= 0 {
		stride = 16
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y += stride {
		for x := 0; x < ab.Dx(); x += stride {
			ar, ag, abl, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if !within(ar, br, tol) || !within(ag, bg, tol) || !within(abl, bbl, tol) {
				return false
			}
		}
	}
	return true
}

func within(a, b uint32, tol int) bool {
	// RGBA() returns 16-bit channels; tolerance is specified in 8-bit.
	d := int(a>>8) - int(b>>8)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// DHash computes a 64-bit difference hash: the image is reduced to a 9x8
// grayscale grid and each bit records whether luminance rises between
// horizontal neighbours.
func DHash(img image.Image) uint64 {
	const (
		gw = 9
		gh = 8
	)
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	// Mean luminance per grid cell.
	var cells [gh][gw]float64
	for cy := 0; cy < gh; cy++ {
		for cx := 0; cx < gw; cx++ {
			x0, x1 := cx*w/gw, (cx+1)*w/gw
			y0, y1 := cy*h/gh, (cy+1)*h/gh
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
					sum += 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
				}
			}
			cells[cy][cx] = sum / float64((x1-x0)*(y1-y0))
		}
	}

	var hash uint64
	bit := 0
	for cy := 0; cy < gh; cy++ {
		for cx := 0; cx < gw-1; cx++ {
			if cells[cy][cx] < cells[cy][cx+1] {
				hash |= 1 << bit
			}
			bit++
		}
	}
	return hash
}

// Hamming counts differing bits between two hashes.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
