// Package export bundles capture artifacts into delivery formats beyond the
// raw image files.
package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// PDF writes a single PDF with one page per image, in the given order.
// Images keep their pixel dimensions; each page is sized to its image.
func PDF(w io.Writer, images [][]byte) error {
	if len(images) == 0 {
		return fmt.Errorf("export: no images")
	}

	readers := make([]io.Reader, len(images))
	for i, img := range images {
		readers[i] = bytes.NewReader(img)
	}

	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, w, readers, imp, nil); err != nil {
		return fmt.Errorf("export: import images: %w", err)
	}
	return nil
}
