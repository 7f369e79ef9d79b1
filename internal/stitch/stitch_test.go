package stitch

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/hazyhaar/longshot/internal/tile"
)

func solid(w, h int, key uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: key, G: 255 - key, B: key, A: 255}), image.Point{}, draw.Src)
	return img
}

func tileSeq(heights []int, w int) []tile.Tile {
	var tiles []tile.Tile
	off := 0
	for i, h := range heights {
		tiles = append(tiles, tile.Tile{Img: solid(w, h, uint8(i+1)*20), Offset: off, Index: i})
		off += h
	}
	return tiles
}

func keyAt(img *image.RGBA, y int) uint8 {
	return img.RGBAAt(0, y).R
}

func TestCompose_NoOverlap_ExactBoundaries(t *testing.T) {
	tiles := tileSeq([]int{100, 100, 50}, 64)
	parts, err := Compose(tiles, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(parts))
	}
	img := parts[0].Img
	if got := img.Bounds().Dy(); got != 250 {
		t.Fatalf("height = %d, want 250", got)
	}

	// Every row carries exactly its tile's key: no gaps, no repeats.
	for y := 0; y < 250; y++ {
		want := uint8(1) * 20
		switch {
		case y >= 200:
			want = 3 * 20
		case y >= 100:
			want = 2 * 20
		}
		if got := keyAt(img, y); got != want {
			t.Fatalf("row %d key = %d, want %d", y, got, want)
		}
	}

	wantSeams := []int{0, 100, 200}
	if len(parts[0].Seams) != 3 {
		t.Fatalf("seams = %v, want %v", parts[0].Seams, wantSeams)
	}
	for i, s := range wantSeams {
		if parts[0].Seams[i] != s {
			t.Fatalf("seams = %v, want %v", parts[0].Seams, wantSeams)
		}
	}
}

func TestCompose_DetectsInjectedOverlap(t *testing.T) {
	const w, h, injected = 64, 100, 17

	// Tile a: top half key 1, bottom half gradient rows (unique content).
	a := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := color.RGBA{R: uint8(y), G: 100, B: 200, A: 255}
		draw.Draw(a, image.Rect(0, y, w, y+1), image.NewUniform(c), image.Point{}, draw.Src)
	}
	// Tile b: leading rows repeat a's trailing rows, then fresh content.
	b := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(b, image.Rect(0, 0, w, injected), a, image.Pt(0, h-injected), draw.Src)
	for y := injected; y < h; y++ {
		c := color.RGBA{R: uint8(y), G: 250, B: 10, A: 255}
		draw.Draw(b, image.Rect(0, y, w, y+1), image.NewUniform(c), image.Point{}, draw.Src)
	}

	if got := Overlap(a, b, 40, 0); got != injected {
		t.Fatalf("Overlap = %d, want %d", got, injected)
	}

	tiles := []tile.Tile{
		{Img: a, Offset: 0, Index: 0},
		{Img: b, Offset: h - injected, Index: 1},
	}
	parts, err := Compose(tiles, Options{DetectOverlap: true, MaxOverlap: 40})
	if err != nil {
		t.Fatal(err)
	}
	if got := parts[0].Height(); got != 2*h-injected {
		t.Fatalf("height = %d, want %d", got, 2*h-injected)
	}
}

func TestCompose_ChromeCrop(t *testing.T) {
	const band = 30
	tiles := tileSeq([]int{100, 100, 100}, 64)
	parts, err := Compose(tiles, Options{ChromeCrop: band})
	if err != nil {
		t.Fatal(err)
	}
	img := parts[0].Img
	if got := img.Bounds().Dy(); got != 100+70+70 {
		t.Fatalf("height = %d, want 240", got)
	}
	// First tile keeps its chrome; later tiles lose the band.
	if keyAt(img, 0) != 20 || keyAt(img, 100) != 40 || keyAt(img, 170) != 60 {
		t.Fatal("chrome crop misplaced tile boundaries")
	}
}

func TestCompose_CeilingSplit(t *testing.T) {
	tiles := tileSeq([]int{100, 100, 100}, 64)
	parts, err := Compose(tiles, Options{Ceiling: 120})
	if err != nil {
		t.Fatal(err)
	}
	// 300 rows with ceiling 120: parts of 120, 120, 60.
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want 3", len(parts))
	}
	heights := []int{120, 120, 60}
	for i, p := range parts {
		if p.Height() != heights[i] {
			t.Fatalf("part %d height = %d, want %d", i, p.Height(), heights[i])
		}
	}

	// Row coverage across parts reconstructs the original with no gaps or
	// repeats: part 2 starts mid-tile-2.
	if keyAt(parts[0].Img, 0) != 20 || keyAt(parts[0].Img, 119) != 40 {
		t.Fatal("part 0 content wrong")
	}
	if keyAt(parts[1].Img, 0) != 40 { // row 120 overall, still tile 2
		t.Fatal("part 1 must start inside tile 2")
	}
	if keyAt(parts[1].Img, 80) != 60 { // row 200 overall, tile 3 begins
		t.Fatal("tile 3 boundary misplaced in part 1")
	}
	if keyAt(parts[2].Img, 59) != 60 {
		t.Fatal("part 2 content wrong")
	}

	// Seams restart relative to each part; row 0 is always a seam.
	if len(parts[1].Seams) != 2 || parts[1].Seams[0] != 0 || parts[1].Seams[1] != 80 {
		t.Fatalf("part 1 seams = %v, want [0 80]", parts[1].Seams)
	}
	if len(parts[2].Seams) != 1 || parts[2].Seams[0] != 0 {
		t.Fatalf("part 2 seams = %v, want [0]", parts[2].Seams)
	}
}

func TestCompose_Empty(t *testing.T) {
	if _, err := Compose(nil, Options{}); err == nil {
		t.Fatal("empty tile slice accepted")
	}
}
