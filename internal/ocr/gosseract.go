//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"policyocr/pkg/models"
)

// GosseractBackend calls libtesseract in process. A client is created per
// page because gosseract clients are not safe for concurrent use.
type GosseractBackend struct {
	clientFactory func() *gosseract.Client
	tessdataDir   string
}

func NewGosseractBackend(cfg TesseractConfig) (*GosseractBackend, error) {
	return &GosseractBackend{clientFactory: gosseract.NewClient, tessdataDir: cfg.TessdataDir}, nil
}

func (g *GosseractBackend) Name() string { return "gosseract" }

func (g *GosseractBackend) Close() error { return nil }

// Recognize cannot be interrupted once libtesseract starts; the adapter
// abandons the call when the page budget runs out.
func (g *GosseractBackend) Recognize(ctx context.Context, req Request) (*Response, error) {
	const op = "GosseractRecognize"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := g.clientFactory()
	defer c.Close()

	if g.tessdataDir != "" {
		if err := c.SetTessdataPrefix(g.tessdataDir); err != nil {
			return nil, WrapOCRError(op, ErrOCRUnavailable, fmt.Sprintf("tessdata: %v", err))
		}
	}
	if err := c.SetImageFromBytes(req.Image); err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("set image: %v", err))
	}
	if req.Language != "" {
		if err := c.SetLanguage(strings.Split(req.Language, "+")...); err != nil {
			return nil, WrapOCRError(op, ErrOCRUnavailable, fmt.Sprintf("set languages: %v", err))
		}
	}
	mode := gosseract.PSM_AUTO
	if req.Mode == ModeSparse {
		mode = gosseract.PSM_SPARSE_TEXT
	}
	if err := c.SetPageSegMode(mode); err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("set page segmentation: %v", err))
	}
	if req.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(req.DPI)); err != nil {
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("set dpi: %v", err))
		}
	}

	text, err := c.Text()
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("recognize text: %v", err))
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("word boxes: %v", err))
	}

	return &Response{Text: strings.TrimSpace(text), Words: gosseractWords(boxes)}, nil
}

// gosseractWords converts word boxes to Words. Tesseract reports
// confidence as a percentage; blank words are dropped.
func gosseractWords(boxes []gosseract.BoundingBox) []Word {
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		words = append(words, Word{
			Text: text,
			Box: models.BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Confidence: min(max(b.Confidence/100.0, 0), 1),
		})
	}
	return words
}
