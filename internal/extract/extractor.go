// Package extract finds field candidates in OCR output.
//
// Tokens of a page are laid out into lines, anchors from the field schema
// are located with an edit-distance tolerance, and the search window of
// each anchor is scanned for text with the field's value shape. The stage
// is pure computation: identical tokens always yield identical candidates.
package extract

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"policyocr/internal/logger"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

// Extractor turns recognized tokens into field candidates for one schema.
// It is read-only after New and safe for concurrent use.
type Extractor struct {
	schema  *schema.Schema
	anchors [][]preparedAnchor
	log     zerolog.Logger
}

// New prepares an extractor for s. The schema is only read.
func New(s *schema.Schema) *Extractor {
	anchors := make([][]preparedAnchor, s.Len())
	for i := range anchors {
		anchors[i] = prepareAnchors(s.Field(i))
	}
	return &Extractor{
		schema:  s,
		anchors: anchors,
		log:     logger.WithComponent("extract"),
	}
}

func (e *Extractor) Schema() *schema.Schema { return e.schema }

// Extract runs ExtractPage over every page. pages[i] holds the tokens of page i.
func (e *Extractor) Extract(pages [][]models.RecognizedToken) []models.FieldCandidate {
	var out []models.FieldCandidate
	for i, tokens := range pages {
		out = append(out, e.ExtractPage(i, tokens)...)
	}
	e.sortCandidates(out)
	return out
}

// ExtractPage returns the candidates found on one page, at most one per
// anchor occurrence.
func (e *Extractor) ExtractPage(page int, tokens []models.RecognizedToken) []models.FieldCandidate {
	lines := layoutLines(tokens)
	if len(lines) == 0 {
		return nil
	}

	hits := findAnchors(e.anchors, lines)
	claimed := make(claimSet)
	for _, h := range hits {
		for p := h.start; p <= h.end; p++ {
			claimed[[2]int{h.line, p}] = true
		}
	}

	var out []models.FieldCandidate
	for _, h := range hits {
		def := e.schema.Field(h.field)
		runs := windowRuns(h, lines, claimed, def)
		m, ok := bestValue(def, runs, h.score)
		if !ok {
			continue
		}

		ocrConf := m.ocrConfidence()
		c := models.FieldCandidate{
			Field:         def.Name,
			Value:         normalizeValue(def.Normalize, m.raw),
			RawText:       m.raw,
			Page:          page,
			Confidence:    score(h.score, ocrConf, m.dist(), m.factor),
			OCRConfidence: ocrConf,
			AnchorScore:   h.score,
			Anchor:        h.anchor,
			Distance:      m.dist(),
			Line:          m.slots[0].line,
			Position:      m.slots[0].pos,
		}
		for _, s := range m.slots {
			c.Box = c.Box.Union(s.box)
		}
		if c.Confidence < def.MinConfidence {
			e.log.Debug().
				Str("field", def.Name).
				Str("value", c.Value).
				Float64("confidence", c.Confidence).
				Float64("min_confidence", def.MinConfidence).
				Msg("Discarding low-confidence candidate")
			continue
		}
		out = append(out, c)
	}

	out = dedupe(out)
	e.sortCandidates(out)

	e.log.Debug().
		Int("page", page).
		Int("tokens", len(tokens)).
		Int("lines", len(lines)).
		Int("anchors", len(hits)).
		Int("candidates", len(out)).
		Msg("Extracted page candidates")
	return out
}

// dedupe merges candidates that point at the same value region, which
// happens when two anchors of a field share a window.
func dedupe(in []models.FieldCandidate) []models.FieldCandidate {
	seen := make(map[string]int, len(in))
	out := in[:0]
	for _, c := range in {
		key := fmt.Sprintf("%s|%s|%d|%v", c.Field, c.Value, c.Page, c.Box)
		if i, ok := seen[key]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

func (e *Extractor) sortCandidates(cs []models.FieldCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if fa, fb := e.schema.Index(a.Field), e.schema.Index(b.Field); fa != fb {
			return fa < fb
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Value < b.Value
	})
}
