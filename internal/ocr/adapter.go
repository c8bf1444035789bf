package ocr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"policyocr/internal/logger"
	"policyocr/internal/metrics"
	"policyocr/pkg/models"
)

// AdapterConfig controls how pages are sent to a backend.
type AdapterConfig struct {
	PageTimeout time.Duration // per attempt; 0 disables
	RetryDelay  time.Duration
	MaxRetries  int // attempts after the first; transient failures only
	Language    string
	Mode        Mode
}

// DefaultAdapterConfig returns the settings used when none are configured.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		PageTimeout: 20 * time.Second,
		RetryDelay:  250 * time.Millisecond,
		MaxRetries:  1,
		Language:    "eng",
		Mode:        ModeDocument,
	}
}

// Adapter converts backend output into RecognizedTokens for one page at a
// time. It is safe for concurrent use when the backend is.
type Adapter struct {
	backend Backend
	cfg     AdapterConfig
	log     zerolog.Logger
}

func NewAdapter(backend Backend, cfg AdapterConfig) *Adapter {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeDocument
	}
	return &Adapter{
		backend: backend,
		cfg:     cfg,
		log:     logger.WithComponent("ocr").With().Str("backend", backend.Name()).Logger(),
	}
}

// Name returns the backend name.
func (a *Adapter) Name() string { return a.backend.Name() }

// Close releases the backend.
func (a *Adapter) Close() error { return a.backend.Close() }

// RecognizePage returns the tokens of one page. A page without text yields
// an empty slice and no error. When ctx ends the context error is returned
// as is, so callers can tell their own deadline from a page timeout.
func (a *Adapter) RecognizePage(ctx context.Context, page models.Page) ([]models.RecognizedToken, error) {
	const op = "RecognizePage"

	if len(page.Image) == 0 {
		return nil, NewOCRError(op, ErrEmptyImage, fmt.Sprintf("page %d", page.Index))
	}

	start := time.Now()
	defer func() { metrics.RecordOCRPage(a.backend.Name(), time.Since(start)) }()

	req := Request{
		Image:    page.Image,
		Format:   page.Format,
		Language: a.cfg.Language,
		Mode:     a.cfg.Mode,
		DPI:      page.DPI,
	}

	var resp *Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = a.attempt(ctx, req)
		if err == nil || ctx.Err() != nil || !IsTransient(err) || attempt >= a.cfg.MaxRetries {
			break
		}

		a.log.Warn().
			Err(err).
			Int("page", page.Index).
			Dur("retry_in", a.cfg.RetryDelay).
			Msg("Transient OCR failure, retrying page")
		metrics.RecordOCRRetry(a.backend.Name())

		if werr := wait(ctx, a.cfg.RetryDelay); werr != nil {
			return nil, werr
		}
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.RecordOCRFailure(a.backend.Name(), failureKind(err))
		return nil, WrapOCRError(op, err, fmt.Sprintf("page %d", page.Index))
	}

	tokens := toTokens(page.Index, resp.Words)
	a.log.Debug().
		Int("page", page.Index).
		Int("words", len(resp.Words)).
		Int("tokens", len(tokens)).
		Dur("duration", time.Since(start)).
		Msg("Page recognized")
	return tokens, nil
}

type result struct {
	resp *Response
	err  error
}

// attempt runs the backend once under the page budget. The call runs in
// its own goroutine so a backend that ignores cancellation is abandoned
// rather than waited for.
func (a *Adapter) attempt(ctx context.Context, req Request) (*Response, error) {
	pctx, cancel := ctx, context.CancelFunc(func() {})
	if a.cfg.PageTimeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, a.cfg.PageTimeout)
	}
	defer cancel()

	done := make(chan result, 1)
	go func() {
		resp, err := a.backend.Recognize(pctx, req)
		done <- result{resp, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-pctx.Done():
		r.err = pctx.Err()
	}

	if r.err != nil {
		if ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return nil, NewOCRError("Recognize", ErrOCRTimeout, fmt.Sprintf("no result within %s", a.cfg.PageTimeout))
		}
		return nil, r.err
	}
	if r.resp == nil {
		return &Response{}, nil
	}
	return r.resp, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrOCRTimeout):
		return "timeout"
	case errors.Is(err, ErrOCRUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}

// toTokens keeps backend order, drops blank words and clamps confidence.
func toTokens(page int, words []Word) []models.RecognizedToken {
	tokens := make([]models.RecognizedToken, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		box := w.Box
		if box.Width < 0 {
			box.Width = 0
		}
		if box.Height < 0 {
			box.Height = 0
		}
		tokens = append(tokens, models.RecognizedToken{
			Text:       text,
			Box:        box,
			Confidence: clamp(w.Confidence),
			Page:       page,
		})
	}
	return tokens
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
