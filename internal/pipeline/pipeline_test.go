package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"policyocr/internal/assemble"
	"policyocr/internal/ocr"
	"policyocr/internal/raster"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

const testSchema = `
version: "pipeline-test"
fields:
  policy_number:
    anchors: ["Policy No", "Policy Number"]
    value_shape: '[A-Z]{3}-\d{5}'
    search_window: {tokens_right: 3, lines_below: 1}
    min_confidence: 0.4
  registration_number:
    anchors: ["Registration No"]
    value_shape: '[A-Z]{2}\d{2}[A-Z]{1,2}\d{4}'
    search_window: {tokens_right: 3}
    min_confidence: 0.4
  total_premium:
    anchors: ["Total Premium"]
    value_shape: '[0-9,]+\.\d{2}'
    search_window: {tokens_right: 3}
    min_confidence: 0.4
    normalize: amount
`

type fakeRasterizer struct {
	pages    int
	maxPages int
	err      error
	calls    atomic.Int32
}

func (f *fakeRasterizer) Rasterize(_ context.Context, data []byte) ([]models.Page, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.maxPages > 0 && f.pages > f.maxPages {
		return nil, raster.NewRasterError("Inspect", raster.ErrPageLimitExceeded, fmt.Sprintf("%d pages", f.pages))
	}
	pages := make([]models.Page, f.pages)
	for i := range pages {
		pages[i] = models.Page{Index: i, Image: []byte{byte(i)}, Format: "png", DPI: 200}
	}
	return pages, nil
}

type fakeRecognizer struct {
	tokens map[int][]models.RecognizedToken
	block  bool
	err    error

	calls    atomic.Int32
	inFlight atomic.Int32
	mu       sync.Mutex
	peak     int32
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) RecognizePage(ctx context.Context, page models.Page) ([]models.RecognizedToken, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	f.mu.Lock()
	if n > f.peak {
		f.peak = n
	}
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	time.Sleep(2 * time.Millisecond)
	return f.tokens[page.Index], nil
}

func line(page, y int, words ...string) []models.RecognizedToken {
	var out []models.RecognizedToken
	x := 10
	for _, w := range words {
		width := 12 * len(w)
		out = append(out, models.RecognizedToken{
			Text:       w,
			Box:        models.BoundingBox{X: x, Y: y, Width: width, Height: 20},
			Confidence: 0.95,
			Page:       page,
		})
		x += width + 10
	}
	return out
}

func newTestPipeline(t *testing.T, cfg Config, r Rasterizer, rec Recognizer) *Pipeline {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema), "test")
	require.NoError(t, err)
	return New(cfg, s, r, rec, assemble.New(assemble.Config{Margin: 0.05}))
}

func defaultConfig() Config {
	return Config{MaxPayloadBytes: 1 << 20, Timeout: 5 * time.Second, Concurrency: 2}
}

func policyTokens() map[int][]models.RecognizedToken {
	return map[int][]models.RecognizedToken{
		0: line(0, 100, "Policy", "No:", "ABC-12345"),
	}
}

func TestProcessPolicyScenario(t *testing.T) {
	rec := &fakeRecognizer{tokens: policyTokens()}
	p := newTestPipeline(t, defaultConfig(), &fakeRasterizer{pages: 1}, rec)

	data := []byte("%PDF-1.4 policy")
	res, err := p.Process(context.Background(), Request{Data: data, Filename: "policy.pdf"})
	require.NoError(t, err)

	f := res.Fields["policy_number"]
	assert.Equal(t, models.StatusFound, f.Status)
	require.NotNil(t, f.Value)
	assert.Equal(t, "ABC-12345", *f.Value)
	assert.Equal(t, 0, *f.Page)
	assert.Greater(t, f.Confidence, 0.0)
	assert.LessOrEqual(t, f.Confidence, 0.95)

	assert.Equal(t, models.StatusNotFound, res.Fields["registration_number"].Status)
	assert.Equal(t, models.StatusNotFound, res.Fields["total_premium"].Status)
	assert.Len(t, res.Fields, 3)
	assert.Equal(t, []string{"policy_number", "registration_number", "total_premium"}, res.Order)

	assert.Equal(t, DocumentID(data), res.DocumentID)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, "pipeline-test", res.SchemaVersion)
	assert.False(t, res.ProcessedAt.IsZero())
}

func TestProcessNoAnchors(t *testing.T) {
	rec := &fakeRecognizer{tokens: map[int][]models.RecognizedToken{
		0: line(0, 100, "Motor", "Insurance", "Schedule"),
		1: line(1, 100, "ABC-12345", "MH12AB1234"),
	}}
	p := newTestPipeline(t, defaultConfig(), &fakeRasterizer{pages: 3}, rec)

	res, err := p.Process(context.Background(), Request{Data: []byte("doc")})
	require.NoError(t, err)
	require.Len(t, res.Fields, 3)
	for name, f := range res.Fields {
		assert.Equal(t, models.StatusNotFound, f.Status, name)
		assert.Nil(t, f.Value, name)
		assert.Nil(t, f.Page, name)
	}
	assert.Zero(t, res.Confidence)
	assert.Equal(t, int32(3), rec.calls.Load())
}

func TestProcessMultiPage(t *testing.T) {
	tokens := policyTokens()
	tokens[1] = append(line(1, 50, "Registration", "No", "MH12AB1234"), line(1, 90, "Total", "Premium", "12,345.00")...)
	rec := &fakeRecognizer{tokens: tokens}
	p := newTestPipeline(t, defaultConfig(), &fakeRasterizer{pages: 2}, rec)

	res, err := p.Process(context.Background(), Request{Data: []byte("doc")})
	require.NoError(t, err)
	assert.Equal(t, "ABC-12345", res.Value("policy_number"))
	assert.Equal(t, "MH12AB1234", res.Value("registration_number"))
	assert.Equal(t, "12345.00", res.Value("total_premium"))
	assert.Equal(t, 1, *res.Fields["total_premium"].Page)
}

func TestProcessFieldSelection(t *testing.T) {
	p := newTestPipeline(t, defaultConfig(), &fakeRasterizer{pages: 1}, &fakeRecognizer{tokens: policyTokens()})

	res, err := p.Process(context.Background(), Request{Data: []byte("doc"), Fields: []string{"policy_number"}})
	require.NoError(t, err)
	assert.Len(t, res.Fields, 1)
	assert.Equal(t, []string{"policy_number"}, res.Order)
	assert.Equal(t, "ABC-12345", res.Value("policy_number"))
}

func TestProcessIsIdempotent(t *testing.T) {
	tokens := policyTokens()
	tokens[0] = append(tokens[0], line(0, 140, "Policy", "Number", "XYZ-99999")...)
	p := newTestPipeline(t, defaultConfig(), &fakeRasterizer{pages: 1}, &fakeRecognizer{tokens: tokens})

	req := Request{Data: []byte("same bytes")}
	first, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, first.Order, second.Order)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Warnings, second.Warnings)
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name       string
		cfg        func(*Config)
		raster     *fakeRasterizer
		rec        *fakeRecognizer
		req        Request
		reason     Reason
		status     int
		sentinel   error
		wantRaster int32
		wantOCR    int32
	}{
		{
			name:       "page limit fails before any OCR",
			raster:     &fakeRasterizer{pages: 12, maxPages: 10},
			rec:        &fakeRecognizer{},
			req:        Request{Data: []byte("doc")},
			reason:     ReasonPageLimitExceeded,
			status:     http.StatusRequestEntityTooLarge,
			sentinel:   raster.ErrPageLimitExceeded,
			wantRaster: 1,
		},
		{
			name:       "zero pages",
			raster:     &fakeRasterizer{pages: 0},
			rec:        &fakeRecognizer{},
			req:        Request{Data: []byte("doc")},
			reason:     ReasonMalformedDocument,
			status:     http.StatusUnprocessableEntity,
			sentinel:   raster.ErrMalformedDocument,
			wantRaster: 1,
		},
		{
			name:       "unparseable",
			raster:     &fakeRasterizer{err: raster.NewRasterError("Inspect", raster.ErrMalformedDocument, "missing PDF header")},
			rec:        &fakeRecognizer{},
			req:        Request{Data: []byte("not a pdf")},
			reason:     ReasonMalformedDocument,
			status:     http.StatusUnprocessableEntity,
			sentinel:   raster.ErrMalformedDocument,
			wantRaster: 1,
		},
		{
			name:     "payload too large",
			cfg:      func(c *Config) { c.MaxPayloadBytes = 4 },
			raster:   &fakeRasterizer{pages: 1},
			rec:      &fakeRecognizer{},
			req:      Request{Data: []byte("12345")},
			reason:   ReasonPayloadTooLarge,
			status:   http.StatusRequestEntityTooLarge,
			sentinel: ErrPayloadTooLarge,
		},
		{
			name:     "unknown field",
			raster:   &fakeRasterizer{pages: 1},
			rec:      &fakeRecognizer{},
			req:      Request{Data: []byte("doc"), Fields: []string{"policy_number", "chassis"}},
			reason:   ReasonInvalidRequest,
			status:   http.StatusBadRequest,
			sentinel: schema.ErrUnknownField,
		},
		{
			name:       "OCR unavailable after retry",
			raster:     &fakeRasterizer{pages: 2},
			rec:        &fakeRecognizer{err: ocr.NewOCRError("RecognizePage", ocr.ErrOCRUnavailable, "page 0")},
			req:        Request{Data: []byte("doc")},
			reason:     ReasonExtractionFailed,
			status:     http.StatusBadGateway,
			sentinel:   ocr.ErrOCRUnavailable,
			wantRaster: 1,
			wantOCR:    -1,
		},
		{
			name:       "time budget exceeded",
			cfg:        func(c *Config) { c.Timeout = 30 * time.Millisecond },
			raster:     &fakeRasterizer{pages: 3},
			rec:        &fakeRecognizer{block: true},
			req:        Request{Data: []byte("doc")},
			reason:     ReasonTimeout,
			status:     http.StatusGatewayTimeout,
			sentinel:   ErrTimeout,
			wantRaster: 1,
			wantOCR:    -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			p := newTestPipeline(t, cfg, tt.raster, tt.rec)

			res, err := p.Process(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, res, "no partial result")

			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tt.reason, f.Reason)
			assert.Equal(t, tt.status, f.HTTPStatus())
			assert.Equal(t, DocumentID(tt.req.Data), f.DocumentID)
			assert.ErrorIs(t, err, tt.sentinel)

			assert.Equal(t, tt.wantRaster, tt.raster.calls.Load())
			if tt.wantOCR >= 0 {
				assert.Equal(t, tt.wantOCR, tt.rec.calls.Load())
			}
		})
	}
}

func TestProcessCanceledByCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &fakeRecognizer{block: true}
	p := newTestPipeline(t, defaultConfig(), &fakeRasterizer{pages: 1}, rec)

	go func() {
		for rec.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	res, err := p.Process(ctx, Request{Data: []byte("doc")})
	assert.Nil(t, res)
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, ReasonCanceled, f.Reason)
	assert.Equal(t, StateRasterized, f.Stage)
	assert.Equal(t, StatusClientClosedRequest, f.HTTPStatus())
}

func TestRecognizeBoundsConcurrency(t *testing.T) {
	rec := &fakeRecognizer{tokens: policyTokens()}
	cfg := defaultConfig()
	cfg.Concurrency = 2
	p := newTestPipeline(t, cfg, &fakeRasterizer{pages: 8}, rec)

	_, err := p.Process(context.Background(), Request{Data: []byte("doc")})
	require.NoError(t, err)
	assert.Equal(t, int32(8), rec.calls.Load())
	assert.LessOrEqual(t, rec.peak, int32(2))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "received", StateReceived.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateExtracted.Terminal())
}
