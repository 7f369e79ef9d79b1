package stitch

import (
	"hash/fnv"
	"image"
)

// Overlap finds how many trailing rows of a equal the leading rows of b.
// The browser's executed scroll can differ slightly from the requested one,
// so consecutive tiles may share a band of rows; skipping that band when
// drawing removes the seam. Candidate sizes are scanned from maxRows
// downward and the first match wins: an exact row-hash match first, then a
// tolerance-bounded sampled pass when tol > 0.
func Overlap(a, b image.Image, maxRows, tol int) int {
	ha, hb := a.Bounds().Dy(), b.Bounds().Dy()
	if maxRows > ha {
		maxRows = ha
	}
	if maxRows > hb {
		maxRows = hb
	}
	if maxRows <= 0 || a.Bounds().Dx() != b.Bounds().Dx() {
		return 0
	}

	// Row signatures for the trailing band of a and the leading band of b.
	tailA := make([]uint64, maxRows) // tailA[i] = row ha-maxRows+i of a
	headB := make([]uint64, maxRows) // headB[j] = row j of b
	for i := 0; i < maxRows; i++ {
		tailA[i] = rowHash(a, ha-maxRows+i)
		headB[i] = rowHash(b, i)
	}

	for k := maxRows; k >= 1; k-- {
		match := true
		for r := 0; r < k; r++ {
			if tailA[maxRows-k+r] != headB[r] {
				match = false
				break
			}
		}
		if match {
			return k
		}
	}

	if tol > 0 {
		for k := maxRows; k >= 1; k-- {
			if bandsWithin(a, b, ha-k, 0, k, tol) {
				return k
			}
		}
	}
	return 0
}

// rowHash digests one pixel row.
func rowHash(img image.Image, y int) uint64 {
	h := fnv.New64a()
	bounds := img.Bounds()
	var px [4]byte
	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		r, g, b, a := img.At(x, bounds.Min.Y+y).RGBA()
		px[0], px[1], px[2], px[3] = byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8)
		h.Write(px[:])
	}
	return h.Sum64()
}

// bandsWithin compares k rows starting at ya in a and yb in b, sampling
// every 4th pixel, allowing a per-channel delta of tol.
func bandsWithin(a, b image.Image, ya, yb, k, tol int) bool {
	ab, bb := a.Bounds(), b.Bounds()
	w := ab.Dx()
	for r := 0; r < k; r++ {
		for x := 0; x < w; x += 4 {
			ar, ag, abl, _ := a.At(ab.Min.X+x, ab.Min.Y+ya+r).RGBA()
			br, bg, bbl, _ := b.At(bb.Min.X+x, bb.Min.Y+yb+r).RGBA()
			if chanDiff(ar, br) > tol || chanDiff(ag, bg) > tol || chanDiff(abl, bbl) > tol {
				return false
			}
		}
	}
	return true
}

func chanDiff(a, b uint32) int {
	d := int(a>>8) - int(b>>8)
	if d < 0 {
		return -d
	}
	return d
}
