package raster

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// countPages parses the document structure without rendering anything.
// The parser panics on some corrupt inputs; those are reported as
// malformed like any other parse failure.
func countPages(data []byte) (n int, err error) {
	const op = "Inspect"

	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, NewRasterError(op, ErrMalformedDocument, "missing PDF header")
	}

	defer func() {
		if p := recover(); p != nil {
			n, err = 0, NewRasterError(op, ErrMalformedDocument, fmt.Sprintf("parser panic: %v", p))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, NewRasterError(op, ErrMalformedDocument, err.Error())
	}
	n = r.NumPage()
	if n <= 0 {
		return 0, NewRasterError(op, ErrMalformedDocument, "document has no pages")
	}
	return n, nil
}
