package ocr

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"policyocr/pkg/models"
)

type fakeAnnotator struct {
	req  *visionpb.BatchAnnotateImagesRequest
	resp *visionpb.BatchAnnotateImagesResponse
	err  error
}

func (f *fakeAnnotator) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error { return nil }

func visionWord(text string, conf float32, x, y, w, h int32) *visionpb.Word {
	var symbols []*visionpb.Symbol
	for _, r := range text {
		symbols = append(symbols, &visionpb.Symbol{Text: string(r)})
	}
	return &visionpb.Word{
		Symbols:    symbols,
		Confidence: conf,
		BoundingBox: &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
			{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h},
		}},
	}
}

func TestVisionBackendRecognize(t *testing.T) {
	fa := &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			FullTextAnnotation: &visionpb.TextAnnotation{
				Text: "Policy No: ABC-12345\n",
				Pages: []*visionpb.Page{{
					Blocks: []*visionpb.Block{{
						Paragraphs: []*visionpb.Paragraph{{
							Words: []*visionpb.Word{
								visionWord("Policy", 0.98, 10, 20, 60, 15),
								visionWord("No:", 0.95, 75, 20, 30, 15),
								visionWord("ABC-12345", 0.9, 110, 21, 90, 15),
							},
						}},
					}},
				}},
			},
		}},
	}}
	b := newVisionBackend(fa)

	resp, err := b.Recognize(context.Background(), Request{Image: []byte("img"), Language: "eng+hin", Mode: ModeDocument})
	require.NoError(t, err)
	require.Len(t, resp.Words, 3)
	assert.Equal(t, "ABC-12345", resp.Words[2].Text)
	assert.Equal(t, models.BoundingBox{X: 110, Y: 21, Width: 90, Height: 15}, resp.Words[2].Box)
	assert.InDelta(t, 0.9, resp.Words[2].Confidence, 1e-6)

	sent := fa.req.Requests[0]
	assert.Equal(t, visionpb.Feature_DOCUMENT_TEXT_DETECTION, sent.Features[0].Type)
	assert.Equal(t, []string{"en", "hi"}, sent.ImageContext.LanguageHints)
}

func TestVisionBackendErrors(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		b := newVisionBackend(&fakeAnnotator{err: status.Error(codes.Unavailable, "try later")})
		_, err := b.Recognize(context.Background(), Request{Image: []byte("img"), Mode: ModeSparse})
		assert.ErrorIs(t, err, ErrOCRUnavailable)
	})

	t.Run("per-image error", func(t *testing.T) {
		b := newVisionBackend(&fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{Error: &rpcstatus.Status{Code: 3, Message: "bad image"}}},
		}})
		_, err := b.Recognize(context.Background(), Request{Image: []byte("img")})
		assert.ErrorIs(t, err, ErrOCRFailed)
		assert.Contains(t, err.Error(), "bad image")
	})

	t.Run("no text", func(t *testing.T) {
		b := newVisionBackend(&fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{}},
		}})
		resp, err := b.Recognize(context.Background(), Request{Image: []byte("img")})
		require.NoError(t, err)
		assert.Empty(t, resp.Words)
	})
}

type fakeProcessor struct {
	req  *documentaipb.ProcessRequest
	resp *documentaipb.ProcessResponse
	err  error
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeProcessor) Close() error { return nil }

func docToken(start, end int64, conf float32, poly *documentaipb.BoundingPoly) *documentaipb.Document_Page_Token {
	return &documentaipb.Document_Page_Token{
		Layout: &documentaipb.Document_Page_Layout{
			TextAnchor: &documentaipb.Document_TextAnchor{
				TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
			},
			Confidence:   conf,
			BoundingPoly: poly,
		},
	}
}

func TestDocumentAIBackendRecognize(t *testing.T) {
	text := "Insured: Rāma Rao\n"
	fp := &fakeProcessor{resp: &documentaipb.ProcessResponse{Document: &documentaipb.Document{
		Text: text,
		Pages: []*documentaipb.Document_Page{{
			Dimension: &documentaipb.Document_Page_Dimension{Width: 1000, Height: 2000},
			Tokens: []*documentaipb.Document_Page_Token{
				docToken(0, 9, 0.97, &documentaipb.BoundingPoly{Vertices: []*documentaipb.Vertex{
					{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 30}, {X: 10, Y: 30},
				}}),
				docToken(9, 14, 0.88, &documentaipb.BoundingPoly{NormalizedVertices: []*documentaipb.NormalizedVertex{
					{X: 0.1, Y: 0.005}, {X: 0.15, Y: 0.005}, {X: 0.15, Y: 0.015}, {X: 0.1, Y: 0.015},
				}}),
				docToken(14, 17, 0.91, nil),
			},
		}},
	}}}

	b := newDocumentAIBackend(DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "abc"}, fp)
	resp, err := b.Recognize(context.Background(), Request{Image: []byte("img"), Format: "png"})
	require.NoError(t, err)
	require.Len(t, resp.Words, 3)

	assert.Equal(t, "Insured: ", resp.Words[0].Text)
	assert.Equal(t, "Rāma ", resp.Words[1].Text)
	assert.Equal(t, "Rao", resp.Words[2].Text)
	assert.Equal(t, models.BoundingBox{X: 10, Y: 10, Width: 80, Height: 20}, resp.Words[0].Box)
	assert.Equal(t, models.BoundingBox{X: 100, Y: 10, Width: 50, Height: 20}, resp.Words[1].Box)
	assert.Equal(t, models.BoundingBox{}, resp.Words[2].Box)

	assert.Equal(t, "projects/p/locations/eu/processors/abc", fp.req.Name)
	assert.Equal(t, "image/png", fp.req.GetRawDocument().MimeType)
}

func TestDocumentAIProcessorVersion(t *testing.T) {
	b := newDocumentAIBackend(DocumentAIConfig{ProjectID: "p", Location: "us", ProcessorID: "abc", ProcessorVersion: "v2"}, &fakeProcessor{})
	assert.Equal(t, "projects/p/locations/us/processors/abc/processorVersions/v2", b.processorName())
}

func TestNewDocumentAIBackendRequiresProcessor(t *testing.T) {
	_, err := NewDocumentAIBackend(context.Background(), DocumentAIConfig{ProjectID: "p"})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestHandleRPCError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{status.Error(codes.Unavailable, "down"), ErrOCRUnavailable},
		{status.Error(codes.ResourceExhausted, "quota"), ErrOCRUnavailable},
		{status.Error(codes.DeadlineExceeded, "slow"), ErrOCRTimeout},
		{context.DeadlineExceeded, ErrOCRTimeout},
		{status.Error(codes.PermissionDenied, "no"), ErrMissingCredentials},
		{status.Error(codes.InvalidArgument, "bad"), ErrOCRFailed},
		{errors.New("plain"), ErrOCRFailed},
		{context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, handleRPCError("op", tt.err), tt.want, tt.err.Error())
	}
}

func TestNewBackendUnknown(t *testing.T) {
	_, err := NewBackend(context.Background(), BackendConfig{Name: "abbyy"})
	assert.ErrorIs(t, err, ErrUnsupportedBackend)

	b, err := NewBackend(context.Background(), BackendConfig{})
	require.NoError(t, err)
	assert.Equal(t, BackendTesseract, b.Name())
}
