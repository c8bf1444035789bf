// Package raster renders PDF pages to PNG images for OCR.
//
// Page counting uses a pure Go PDF parser so that malformed and oversized
// documents are rejected before any rendering. Rendering is done by
// poppler's pdftoppm, which handles scanned and digitally authored pages
// alike.
package raster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"policyocr/internal/logger"
	"policyocr/internal/metrics"
	"policyocr/internal/runner"
	"policyocr/pkg/models"
)

// Config controls how PDFs are rendered. New fills in the binary, DPI and
// concurrency when they are unset.
type Config struct {
	Pdftoppm    string // binary, default "pdftoppm"
	DPI         int
	MaxPages    int
	MaxPixels   int // per page; larger renders are scaled down
	Concurrency int
	TempDir     string // parent for the per-document work dir; "" uses os.TempDir
}

func DefaultConfig() Config {
	return Config{
		Pdftoppm:    "pdftoppm",
		DPI:         200,
		MaxPages:    10,
		MaxPixels:   12_000_000,
		Concurrency: 4,
	}
}

type Rasterizer struct {
	cfg    Config
	runner runner.Runner
	log    zerolog.Logger
}

// New returns a rasterizer that shells out to pdftoppm through r. A nil
// runner executes real processes.
func New(cfg Config, r runner.Runner) *Rasterizer {
	def := DefaultConfig()
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = def.Pdftoppm
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if r == nil {
		r = runner.New()
	}
	return &Rasterizer{
		cfg:    cfg,
		runner: r,
		log:    logger.WithComponent("raster"),
	}
}

// Inspect returns the page count of a PDF, enforcing the page limit.
func (r *Rasterizer) Inspect(data []byte) (int, error) {
	n, err := countPages(data)
	if err != nil {
		return 0, err
	}
	if r.cfg.MaxPages > 0 && n > r.cfg.MaxPages {
		return n, NewRasterError("Inspect", ErrPageLimitExceeded, fmt.Sprintf("%d pages, limit %d", n, r.cfg.MaxPages))
	}
	return n, nil
}

// Rasterize renders every page in order. The PDF is written to a private
// temp directory for pdftoppm and the directory is removed before return.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte) ([]models.Page, error) {
	const op = "Rasterize"

	n, err := r.Inspect(data)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(r.cfg.TempDir, "policyocr-raster-*")
	if err != nil {
		return nil, NewRasterError(op, ErrRasterFailed, fmt.Sprintf("create temp dir: %v", err))
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, NewRasterError(op, ErrRasterFailed, fmt.Sprintf("write document: %v", err))
	}

	pages := make([]models.Page, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			page, err := r.renderPage(gctx, src, dir, i)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	r.log.Debug().Int("pages", n).Int("dpi", r.cfg.DPI).Msg("Document rasterized")
	return pages, nil
}

func (r *Rasterizer) renderPage(ctx context.Context, src, dir string, index int) (models.Page, error) {
	const op = "RenderPage"
	start := time.Now()

	num := strconv.Itoa(index + 1) // pdftoppm pages are 1-based
	prefix := filepath.Join(dir, "page-"+num)
	args := []string{
		"-f", num, "-l", num,
		"-r", strconv.Itoa(r.cfg.DPI),
		"-gray", "-png", "-singlefile",
		src, prefix,
	}

	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Page{}, ctxErr
		}
		details := strings.TrimSpace(string(errb))
		if errors.Is(err, exec.ErrNotFound) {
			details = r.cfg.Pdftoppm + " not found"
		}
		return models.Page{}, NewRasterError(op, ErrRasterFailed, fmt.Sprintf("page %d: %s", index, details))
	}

	out := prefix + ".png"
	img, err := os.ReadFile(out)
	if err != nil {
		return models.Page{}, NewRasterError(op, ErrRasterFailed, fmt.Sprintf("page %d: read render: %v", index, err))
	}
	os.Remove(out)

	img, size, factor, err := fitPixels(img, r.cfg.MaxPixels)
	if err != nil {
		return models.Page{}, NewRasterError(op, ErrRasterFailed, fmt.Sprintf("page %d: %v", index, err))
	}
	dpi := r.cfg.DPI
	if factor != 1 {
		dpi = int(math.Round(float64(dpi) * factor))
		r.log.Debug().
			Int("page", index).
			Int("width", size.X).
			Int("height", size.Y).
			Int("dpi", dpi).
			Msg("Page scaled down to pixel limit")
	}

	metrics.RecordPage(time.Since(start))
	return models.Page{
		Index:  index,
		Image:  img,
		Format: "png",
		Width:  size.X,
		Height: size.Y,
		DPI:    dpi,
	}, nil
}
