package ocr

import (
	"context"
	"fmt"
	"math"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"policyocr/internal/logger"
	"policyocr/pkg/models"
)

// DocumentAIConfig holds Google Document AI configuration.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string // "us" or "eu"
	ProcessorID      string // an OCR processor (Document OCR)
	ProcessorVersion string
}

type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIBackend sends each page image to a Document AI OCR processor
// and reads back its tokens.
type DocumentAIBackend struct {
	client documentProcessor
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIBackend creates the backend with credentials from environment.
// Expects: GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
// Requires: project and processor id; location defaults to "us".
func NewDocumentAIBackend(ctx context.Context, config DocumentAIConfig) (*DocumentAIBackend, error) {
	const op = "NewDocumentAIBackend"

	if config.ProjectID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	// Regional endpoint unless the default multi-region
	var endpoint []option.ClientOption
	if config.Location != "us" {
		endpoint = append(endpoint, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)))
	}
	opts, explicit := googleClientOptions(endpoint...)

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if !explicit {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}
	return newDocumentAIBackend(config, client), nil
}

func newDocumentAIBackend(config DocumentAIConfig, client documentProcessor) *DocumentAIBackend {
	return &DocumentAIBackend{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

func (d *DocumentAIBackend) Name() string { return "documentai" }

func (d *DocumentAIBackend) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// processorName constructs the full processor name for Document AI API.
func (d *DocumentAIBackend) processorName() string {
	if d.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			d.config.ProjectID, d.config.Location, d.config.ProcessorID, d.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

func (d *DocumentAIBackend) Recognize(ctx context.Context, req Request) (*Response, error) {
	const op = "DocumentAIRecognize"

	mime := "image/png"
	if req.Format != "" && req.Format != "png" {
		mime = "image/" + req.Format
	}

	resp, err := d.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  req.Image,
				MimeType: mime,
			},
		},
	})
	if err != nil {
		return nil, handleRPCError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	words := documentWords(resp.Document)
	d.log.Debug().
		Str("processor", d.processorName()).
		Int("pages", len(resp.Document.Pages)).
		Int("tokens", len(words)).
		Msg("Document AI response processed")
	return &Response{Text: resp.Document.Text, Words: words}, nil
}

// documentWords reads the tokens of every page. Token text is referenced
// by code point offsets into Document.Text.
func documentWords(doc *documentaipb.Document) []Word {
	text := []rune(doc.Text)
	var words []Word
	for _, page := range doc.Pages {
		var w, h float32
		if page.Dimension != nil {
			w, h = page.Dimension.Width, page.Dimension.Height
		}
		for _, tok := range page.Tokens {
			if tok.Layout == nil {
				continue
			}
			words = append(words, Word{
				Text:       anchorText(text, tok.Layout.TextAnchor),
				Box:        layoutBox(tok.Layout.BoundingPoly, w, h),
				Confidence: float64(tok.Layout.Confidence),
			})
		}
	}
	return words
}

func anchorText(text []rune, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var out []rune
	for _, seg := range anchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		out = append(out, text[start:end]...)
	}
	return string(out)
}

// layoutBox prefers pixel vertices and falls back to normalized vertices
// scaled by the page dimension.
func layoutBox(poly *documentaipb.BoundingPoly, width, height float32) models.BoundingBox {
	if poly == nil {
		return models.BoundingBox{}
	}

	var xs, ys []float64
	if len(poly.Vertices) > 0 {
		for _, v := range poly.Vertices {
			xs = append(xs, float64(v.X))
			ys = append(ys, float64(v.Y))
		}
	} else {
		for _, v := range poly.NormalizedVertices {
			xs = append(xs, float64(v.X*width))
			ys = append(ys, float64(v.Y*height))
		}
	}
	if len(xs) == 0 {
		return models.BoundingBox{}
	}

	minX, maxX := bounds(xs)
	minY, maxY := bounds(ys)
	x, y := int(math.Round(minX)), int(math.Round(minY))
	return models.BoundingBox{
		X:      x,
		Y:      y,
		Width:  int(math.Round(maxX)) - x,
		Height: int(math.Round(maxY)) - y,
	}
}

func bounds(vs []float64) (lo, hi float64) {
	lo, hi = vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
