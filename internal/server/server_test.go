package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"policyocr/internal/pipeline"
	"policyocr/internal/raster"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

type fakeProcessor struct {
	schema *schema.Schema
	res    *models.ExtractionResult
	err    error
	got    pipeline.Request
	calls  int
}

func (f *fakeProcessor) Process(_ context.Context, req pipeline.Request) (*models.ExtractionResult, error) {
	f.calls++
	f.got = req
	return f.res, f.err
}

func (f *fakeProcessor) Schema() *schema.Schema { return f.schema }

func newFake(t *testing.T) *fakeProcessor {
	t.Helper()
	s, err := schema.Default()
	require.NoError(t, err)

	value, page := "ABC-12345", 0
	return &fakeProcessor{
		schema: s,
		res: &models.ExtractionResult{
			DocumentID:    "doc-1",
			SchemaVersion: s.Version(),
			Fields: map[string]models.FieldResult{
				"policy_number": {Value: &value, Status: models.StatusFound, Confidence: 0.91, Page: &page},
				"insured_name":  {Status: models.StatusNotFound},
			},
			Order:       []string{"policy_number", "insured_name"},
			Confidence:  0.455,
			PageCount:   1,
			ProcessedAt: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestExtractRawBody(t *testing.T) {
	fp := newFake(t)
	h := New(Config{MaxPayloadBytes: 1 << 20}, fp).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/extract?fields=policy_number,+insured_name&filename=a.pdf", strings.NewReader("%PDF-1.4 body"))
	req.Header.Set("Content-Type", "application/pdf")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, []byte("%PDF-1.4 body"), fp.got.Data)
	assert.Equal(t, "a.pdf", fp.got.Filename)
	assert.Equal(t, []string{"policy_number", "insured_name"}, fp.got.Fields)

	var body struct {
		DocumentID string `json:"document_id"`
		Fields     map[string]struct {
			Value      *string `json:"value"`
			Status     string  `json:"status"`
			Confidence float64 `json:"confidence"`
			Page       *int    `json:"page"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "doc-1", body.DocumentID)
	assert.Equal(t, "ABC-12345", *body.Fields["policy_number"].Value)
	assert.Equal(t, "found", body.Fields["policy_number"].Status)
	assert.Nil(t, body.Fields["insured_name"].Value)
	assert.Nil(t, body.Fields["insured_name"].Page)
	assert.Equal(t, "not_found", body.Fields["insured_name"].Status)
}

func TestExtractMultipart(t *testing.T) {
	fp := newFake(t)
	h := New(Config{MaxPayloadBytes: 1 << 20}, fp).Handler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "schedule.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.7 scanned"))
	require.NoError(t, mw.WriteField("fields", "policy_number"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/extract", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "schedule.pdf", fp.got.Filename)
	assert.Equal(t, []byte("%PDF-1.7 scanned"), fp.got.Data)
	assert.Equal(t, []string{"policy_number"}, fp.got.Fields)
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		limit      int64
		err        error
		wantStatus int
		wantReason string
		wantCalls  int
	}{
		{
			name:       "empty body",
			body:       "",
			limit:      1 << 20,
			wantStatus: http.StatusBadRequest,
			wantReason: "invalid_request",
		},
		{
			name:       "body over limit",
			body:       strings.Repeat("x", 200<<10),
			limit:      1 << 10,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantReason: "payload_too_large",
		},
		{
			name:       "malformed document",
			body:       "not a pdf",
			limit:      1 << 20,
			err:        &pipeline.Failure{Reason: pipeline.ReasonMalformedDocument, DocumentID: "doc-9", Err: raster.ErrMalformedDocument},
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: "malformed_document",
			wantCalls:  1,
		},
		{
			name:       "timeout",
			body:       "%PDF",
			limit:      1 << 20,
			err:        &pipeline.Failure{Reason: pipeline.ReasonTimeout, Err: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
			wantReason: "timeout",
			wantCalls:  1,
		},
		{
			name:       "unexpected error",
			body:       "%PDF",
			limit:      1 << 20,
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantReason: "extraction_failed",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFake(t)
			fp.err = tt.err
			fp.res = nil
			h := New(Config{MaxPayloadBytes: tt.limit}, fp).Handler()

			req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalls, fp.calls)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantReason, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, rec.Header().Get("X-Request-ID"), body.RequestID)
		})
	}
}

func TestHealthzAndSchema(t *testing.T) {
	fp := newFake(t)
	h := New(Config{Backend: "tesseract"}, fp).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"status":"ok","backend":"tesseract","schema_version":%q}`, fp.schema.Version()), rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var sc struct {
		Version string `json:"version"`
		Fields  []struct {
			Name    string   `json:"name"`
			Anchors []string `json:"anchors"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sc))
	assert.Equal(t, fp.schema.Version(), sc.Version)
	require.Len(t, sc.Fields, fp.schema.Len())
	assert.Equal(t, "policy_number", sc.Fields[0].Name)
	assert.NotEmpty(t, sc.Fields[0].Anchors)
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(Config{}, newFake(t)).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/extract", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := New(Config{}, newFake(t)).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
