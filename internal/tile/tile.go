// Package tile defines the unit passed from the acquisition loop to the
// compositor: one viewport-sized raster captured at a known scroll offset.
package tile

import (
	"bytes"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"
)

// Tile is a single captured viewport. Immutable once created.
type Tile struct {
	Img    image.Image
	Offset int // CSS pixel scroll offset the capture was taken at
	Index  int // position in the accepted sequence
}

// Decode turns raw capture bytes into a Tile.
func Decode(data []byte, offset, index int) (Tile, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Tile{}, fmt.Errorf("tile: decode frame at offset %d: %w", offset, err)
	}
	return Tile{Img: img, Offset: offset, Index: index}, nil
}

// Width returns the tile's pixel width.
func (t Tile) Width() int { return t.Img.Bounds().Dx() }

// Height returns the tile's pixel height.
func (t Tile) Height() int { return t.Img.Bounds().Dy() }
