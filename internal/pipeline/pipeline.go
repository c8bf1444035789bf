// Package pipeline sequences rasterization, OCR, extraction and assembly
// for one document under a single time budget.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"policyocr/internal/assemble"
	"policyocr/internal/extract"
	"policyocr/internal/logger"
	"policyocr/internal/metrics"
	"policyocr/internal/raster"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

// documentNamespace scopes name-based document IDs.
var documentNamespace = uuid.MustParse("0c1f6d2e-5b43-4c8e-9a77-3f1e2b6d9a10")

// Rasterizer renders a PDF into ordered pages. It must reject malformed
// and over-limit documents before rendering anything.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) ([]models.Page, error)
}

// Recognizer returns the tokens of one page.
type Recognizer interface {
	Name() string
	RecognizePage(ctx context.Context, page models.Page) ([]models.RecognizedToken, error)
}

// Config holds the limits applied to every document.
type Config struct {
	MaxPayloadBytes int64
	Timeout         time.Duration // whole document; 0 disables
	Concurrency     int           // pages recognized at once
}

// Request is one document submitted for extraction.
type Request struct {
	Data     []byte
	Filename string
	Fields   []string // subset of the schema; empty means all fields
}

// Pipeline runs a document through rasterization, OCR, extraction and
// assembly. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	schema    *schema.Schema
	raster    Rasterizer
	ocr       Recognizer
	extractor *extract.Extractor
	assembler *assemble.Assembler
	log       zerolog.Logger
}

// New builds a pipeline around s. Concurrency below one is raised to one.
func New(cfg Config, s *schema.Schema, r Rasterizer, rec Recognizer, a *assemble.Assembler) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		cfg:       cfg,
		schema:    s,
		raster:    r,
		ocr:       rec,
		extractor: extract.New(s),
		assembler: a,
		log:       logger.WithComponent("pipeline"),
	}
}

// Schema returns the full field schema documents are extracted with.
func (p *Pipeline) Schema() *schema.Schema { return p.schema }

// DocumentID returns the identifier Process assigns to data.
func DocumentID(data []byte) string {
	return uuid.NewSHA1(documentNamespace, data).String()
}

// run tracks one document through the state machine.
type run struct {
	id    string
	state State
	start time.Time
	log   zerolog.Logger
}

func (r *run) advance(to State) {
	r.log.Debug().
		Str("from", r.state.String()).
		Str("to", to.String()).
		Dur("elapsed", time.Since(r.start)).
		Msg("Stage complete")
	r.state = to
}

func (r *run) fail(reason Reason, err error) *Failure {
	f := &Failure{Reason: reason, Stage: r.state, DocumentID: r.id, Err: err}
	r.state = StateFailed
	metrics.RecordDocument(string(reason), time.Since(r.start))
	r.log.Error().
		Err(err).
		Str("reason", string(reason)).
		Str("stage", f.Stage.String()).
		Dur("elapsed", time.Since(r.start)).
		Msg("Document failed")
	return f
}

// Process runs one document to completion. It returns either a result
// covering every requested field or a *Failure, never both.
func (p *Pipeline) Process(ctx context.Context, req Request) (*models.ExtractionResult, error) {
	r := &run{id: DocumentID(req.Data), state: StateReceived, start: time.Now()}
	r.log = logger.WithDocument(p.log, r.id)
	r.log.Info().
		Str("filename", req.Filename).
		Int("bytes", len(req.Data)).
		Msg("Document received")

	if p.cfg.MaxPayloadBytes > 0 && int64(len(req.Data)) > p.cfg.MaxPayloadBytes {
		return nil, r.fail(ReasonPayloadTooLarge, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(req.Data), p.cfg.MaxPayloadBytes))
	}
	selected, err := p.schema.Select(req.Fields)
	if err != nil {
		return nil, r.fail(ReasonInvalidRequest, err)
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	pages, err := p.raster.Rasterize(ctx, req.Data)
	if err != nil {
		return nil, r.fail(classify(ctx, err), err)
	}
	if len(pages) == 0 {
		return nil, r.fail(ReasonMalformedDocument, raster.ErrMalformedDocument)
	}
	r.advance(StateRasterized)

	tokens, err := p.recognize(ctx, pages)
	if err != nil {
		return nil, r.fail(classify(ctx, err), err)
	}
	r.advance(StateRecognized)

	candidates := p.extractor.Extract(tokens)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(classify(ctx, err), err)
	}
	r.advance(StateExtracted)

	res := p.assembler.Assemble(selected, candidates)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(classify(ctx, err), err)
	}
	r.advance(StateAssembled)

	res.DocumentID = r.id
	res.PageCount = len(pages)
	res.ProcessedAt = time.Now().UTC()
	res.Duration = time.Since(r.start)
	r.advance(StateCompleted)

	counts := res.Counts()
	byStatus := make(map[string]int, len(counts))
	for s, n := range counts {
		byStatus[string(s)] = n
	}
	metrics.RecordDocument(StateCompleted.String(), res.Duration)
	metrics.RecordFields(byStatus)

	r.log.Info().
		Int("pages", res.PageCount).
		Int("candidates", len(candidates)).
		Int("found", counts[models.StatusFound]).
		Int("ambiguous", counts[models.StatusAmbiguous]).
		Int("not_found", counts[models.StatusNotFound]).
		Float64("confidence", res.Confidence).
		Strs("warnings", res.Warnings).
		Dur("duration", res.Duration).
		Msg("Document completed")
	return res, nil
}

// recognize runs OCR over all pages with bounded concurrency and joins
// before returning. The first failure cancels the remaining pages.
func (p *Pipeline) recognize(ctx context.Context, pages []models.Page) ([][]models.RecognizedToken, error) {
	out := make([][]models.RecognizedToken, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tokens, err := p.ocr.RecognizePage(gctx, page)
			if err != nil {
				return err
			}
			out[i] = tokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// classify maps a stage error onto a failure reason. An expired budget
// wins over whatever error the interrupted stage produced.
func classify(ctx context.Context, err error) Reason {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(ctxErr, context.Canceled):
		return ReasonCanceled
	}

	switch {
	case errors.Is(err, raster.ErrMalformedDocument):
		return ReasonMalformedDocument
	case errors.Is(err, raster.ErrPageLimitExceeded):
		return ReasonPageLimitExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	default:
		return ReasonExtractionFailed
	}
}
