package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"policyocr/internal/logger"
	"policyocr/internal/pipeline"
	"policyocr/internal/schema"
)

// multipartOverhead leaves room for form boundaries and headers on top of
// the document itself.
const multipartOverhead = 64 << 10

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	DocumentID string `json:"document_id,omitempty"`
	RequestID  string `json:"request_id"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
	Schema  string `json:"schema_version"`
}

type schemaResponse struct {
	Version string                   `json:"version"`
	Source  string                   `json:"source"`
	Fields  []schema.FieldDefinition `json:"fields"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	log := logger.WithRequestID(reqID)
	w.Header().Set("X-Request-ID", reqID)

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	if s.cfg.MaxPayloadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxPayloadBytes+multipartOverhead)
	}

	data, filename, err := readDocument(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, log, http.StatusRequestEntityTooLarge, pipeline.ReasonPayloadTooLarge, "", reqID, err)
			return
		}
		s.writeError(w, log, http.StatusBadRequest, pipeline.ReasonInvalidRequest, "", reqID, err)
		return
	}

	log.Info().
		Str("filename", filename).
		Int("bytes", len(data)).
		Msg("Extraction requested")

	res, err := s.processor.Process(ctx, pipeline.Request{
		Data:     data,
		Filename: filename,
		Fields:   schema.SplitFields(r.FormValue("fields")),
	})
	if err != nil {
		var f *pipeline.Failure
		if errors.As(err, &f) {
			s.writeError(w, log, f.HTTPStatus(), f.Reason, f.DocumentID, reqID, err)
			return
		}
		s.writeError(w, log, http.StatusInternalServerError, pipeline.ReasonExtractionFailed, "", reqID, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	sc := s.processor.Schema()
	writeJSON(w, http.StatusOK, schemaResponse{
		Version: sc.Version(),
		Source:  sc.Source(),
		Fields:  sc.Fields(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Backend: s.cfg.Backend,
		Schema:  s.processor.Schema().Version(),
	})
}

// readDocument accepts multipart uploads with a "file" part or a raw PDF body.
func readDocument(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("multipart field \"file\": %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		if len(data) == 0 {
			return nil, "", errors.New("uploaded file is empty")
		}
		return data, header.Filename, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("request body is empty")
	}
	return data, r.URL.Query().Get("filename"), nil
}

func (s *Server) writeError(w http.ResponseWriter, log zerolog.Logger, status int, reason pipeline.Reason, documentID, reqID string, err error) {
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Int("status", status).Str("reason", string(reason)).Msg("Extraction request failed")

	writeJSON(w, status, errorResponse{
		Error:      string(reason),
		Message:    err.Error(),
		DocumentID: documentID,
		RequestID:  reqID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
