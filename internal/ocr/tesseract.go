package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"policyocr/internal/logger"
	"policyocr/internal/runner"
	"policyocr/pkg/models"
)

// TSV columns: level page_num block_num par_num line_num word_num left top width height conf text
const (
	tsvColumns   = 12
	tsvWordLevel = "5"
)

type TesseractConfig struct {
	Path        string // binary, default "tesseract"
	TessdataDir string
	OEM         int // 0 leaves the engine default
	TempDir     string
}

// TesseractBackend runs the tesseract CLI once per page and parses its
// TSV output.
type TesseractBackend struct {
	cfg    TesseractConfig
	runner runner.Runner
	log    zerolog.Logger
}

func NewTesseractBackend(cfg TesseractConfig, r runner.Runner) *TesseractBackend {
	if cfg.Path == "" {
		cfg.Path = "tesseract"
	}
	if r == nil {
		r = runner.New()
	}
	return &TesseractBackend{
		cfg:    cfg,
		runner: r,
		log:    logger.WithComponent("tesseract"),
	}
}

func (t *TesseractBackend) Name() string { return "tesseract" }

func (t *TesseractBackend) Close() error { return nil }

func (t *TesseractBackend) Recognize(ctx context.Context, req Request) (*Response, error) {
	const op = "TesseractRecognize"

	dir, err := os.MkdirTemp(t.cfg.TempDir, "policyocr-tess-*")
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	ext := req.Format
	if ext == "" {
		ext = "png"
	}
	img := filepath.Join(dir, "page."+ext)
	if err := os.WriteFile(img, req.Image, 0o600); err != nil {
		return nil, WrapOCRError(op, err, "failed to write page image")
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Path, t.args(img, req)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, WrapOCRError(op, ErrOCRUnavailable, fmt.Sprintf("%s not found", t.cfg.Path))
		}
		return nil, WrapOCRError(op, ErrOCRFailed, strings.TrimSpace(string(errb)))
	}

	words, text := parseTSV(string(out))
	t.log.Debug().Int("words", len(words)).Msg("TSV parsed")
	return &Response{Text: text, Words: words}, nil
}

func (t *TesseractBackend) args(img string, req Request) []string {
	lang := req.Language
	if lang == "" {
		lang = "eng"
	}
	args := []string{img, "stdout", "-l", lang, "--psm", psm(req.Mode)}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if req.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(req.DPI))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, "tsv")
}

// psm maps a recognition mode to a tesseract page segmentation mode:
// 3 is fully automatic, 11 is sparse text.
func psm(m Mode) string {
	if m == ModeSparse {
		return "11"
	}
	return "3"
}

// parseTSV returns word rows with their boxes and the page text rebuilt
// line by line. Rows with conf -1 carry layout only and are skipped.
func parseTSV(out string) ([]Word, string) {
	var words []Word
	var text strings.Builder
	lastLine := ""

	for i, ln := range strings.Split(out, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.SplitN(ln, "\t", tsvColumns)
		if len(cols) < tsvColumns || cols[0] != tsvWordLevel {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		box, ok := tsvBox(cols[6:10])
		if !ok {
			continue
		}
		words = append(words, Word{Text: word, Box: box, Confidence: conf / 100})

		lineKey := strings.Join(cols[1:5], ".")
		switch {
		case text.Len() == 0:
		case lineKey != lastLine:
			text.WriteByte('\n')
		default:
			text.WriteByte(' ')
		}
		text.WriteString(word)
		lastLine = lineKey
	}
	return words, text.String()
}

func tsvBox(cols []string) (models.BoundingBox, bool) {
	var v [4]int
	for i, c := range cols {
		n, err := strconv.Atoi(c)
		if err != nil {
			return models.BoundingBox{}, false
		}
		v[i] = n
	}
	return models.BoundingBox{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, true
}
