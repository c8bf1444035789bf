package ocr

import (
	"context"
	"fmt"
	"math"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"policyocr/internal/logger"
	"policyocr/pkg/models"
)

// imageAnnotator is the part of the Vision client the backend uses.
type imageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// VisionBackend implements Backend using Google Cloud Vision API.
type VisionBackend struct {
	client imageAnnotator
	log    zerolog.Logger
}

// NewVisionBackend creates a Vision backend with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionBackend(ctx context.Context) (*VisionBackend, error) {
	const op = "NewVisionBackend"

	opts, explicit := googleClientOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if !explicit {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}
	return newVisionBackend(client), nil
}

func newVisionBackend(client imageAnnotator) *VisionBackend {
	return &VisionBackend{
		client: client,
		log:    logger.WithComponent("vision"),
	}
}

func (v *VisionBackend) Name() string { return "vision" }

// Close closes the underlying Vision client.
func (v *VisionBackend) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func (v *VisionBackend) Recognize(ctx context.Context, req Request) (*Response, error) {
	const op = "VisionRecognize"

	feature := visionpb.Feature_DOCUMENT_TEXT_DETECTION
	if req.Mode == ModeSparse {
		feature = visionpb.Feature_TEXT_DETECTION
	}

	annotate := &visionpb.AnnotateImageRequest{
		Image:    &visionpb.Image{Content: req.Image},
		Features: []*visionpb.Feature{{Type: feature}},
	}
	if hints := languageHints(req.Language); len(hints) > 0 {
		annotate.ImageContext = &visionpb.ImageContext{LanguageHints: hints}
	}

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{annotate},
	})
	if err != nil {
		return nil, handleRPCError(op, err)
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	page := resp.Responses[0]
	if page.Error != nil && page.Error.Code != 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", page.Error.Message))
	}
	if page.FullTextAnnotation == nil {
		return &Response{}, nil
	}

	words := visionWords(page.FullTextAnnotation)
	v.log.Debug().Int("words", len(words)).Str("feature", feature.String()).Msg("Vision response processed")
	return &Response{Text: page.FullTextAnnotation.Text, Words: words}, nil
}

// visionWords flattens pages, blocks and paragraphs into words in the
// order Vision reports them.
func visionWords(ta *visionpb.TextAnnotation) []Word {
	var words []Word
	for _, p := range ta.Pages {
		for _, block := range p.Blocks {
			for _, paragraph := range block.Paragraphs {
				for _, w := range paragraph.Words {
					var sb strings.Builder
					for _, s := range w.Symbols {
						sb.WriteString(s.Text)
					}
					words = append(words, Word{
						Text:       sb.String(),
						Box:        visionBox(w.BoundingBox),
						Confidence: float64(w.Confidence),
					})
				}
			}
		}
	}
	return words
}

func visionBox(poly *visionpb.BoundingPoly) models.BoundingBox {
	if poly == nil || len(poly.Vertices) == 0 {
		return models.BoundingBox{}
	}
	minX, minY := int32(math.MaxInt32), int32(math.MaxInt32)
	var maxX, maxY int32
	for _, vx := range poly.Vertices {
		minX = min(minX, vx.X)
		minY = min(minY, vx.Y)
		maxX = max(maxX, vx.X)
		maxY = max(maxY, vx.Y)
	}
	return models.BoundingBox{X: int(minX), Y: int(minY), Width: int(maxX - minX), Height: int(maxY - minY)}
}

// tesseract language codes to the BCP-47 hints Vision expects
var visionLanguages = map[string]string{
	"eng": "en",
	"hin": "hi",
	"mar": "mr",
	"tam": "ta",
	"tel": "te",
	"kan": "kn",
	"ben": "bn",
	"guj": "gu",
	"mal": "ml",
	"pan": "pa",
}

func languageHints(lang string) []string {
	var hints []string
	for _, code := range strings.Split(lang, "+") {
		code = strings.TrimSpace(code)
		if hint, ok := visionLanguages[code]; ok {
			hints = append(hints, hint)
		} else if len(code) == 2 {
			hints = append(hints, code)
		}
	}
	return hints
}
