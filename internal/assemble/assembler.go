// Package assemble resolves per-page field candidates into one
// document-level ExtractionResult.
package assemble

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"policyocr/internal/logger"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

// DefaultMargin is the confidence gap below which two competing values are
// reported as ambiguous.
const DefaultMargin = 0.05

// Config tunes the assembler. A negative Margin selects DefaultMargin.
type Config struct {
	Margin float64
}

// Assembler resolves per-field candidates into one ExtractionResult and
// runs the consistency checks over it. It holds no per-document state.
type Assembler struct {
	margin float64
	checks []Check
	log    zerolog.Logger
}

// New returns an assembler running DefaultChecks.
func New(cfg Config) *Assembler {
	margin := cfg.Margin
	if margin < 0 {
		margin = DefaultMargin
	}
	return &Assembler{
		margin: margin,
		checks: DefaultChecks(),
		log:    logger.WithComponent("assemble"),
	}
}

// Margin returns the configured ambiguity margin.
func (a *Assembler) Margin() float64 { return a.margin }

// Assemble builds the result for every field of s. Candidates for fields
// outside s are ignored. The result depends only on the candidate set, not
// on the order candidates are given in.
func (a *Assembler) Assemble(s *schema.Schema, candidates []models.FieldCandidate) *models.ExtractionResult {
	grouped := make(map[string][]models.FieldCandidate, s.Len())
	for _, c := range candidates {
		if s.Index(c.Field) < 0 {
			continue
		}
		grouped[c.Field] = append(grouped[c.Field], c)
	}

	res := &models.ExtractionResult{
		SchemaVersion: s.Version(),
		Fields:        make(map[string]models.FieldResult, s.Len()),
		Order:         s.Names(),
	}

	var total float64
	for _, name := range res.Order {
		fr := a.resolve(grouped[name])
		res.Fields[name] = fr
		total += fr.Confidence
	}
	if n := len(res.Order); n > 0 {
		res.Confidence = round(total / float64(n))
	}

	for _, check := range a.checks {
		if w := check(res); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}

	counts := res.Counts()
	a.log.Debug().
		Int("candidates", len(candidates)).
		Int("found", counts[models.StatusFound]).
		Int("ambiguous", counts[models.StatusAmbiguous]).
		Int("not_found", counts[models.StatusNotFound]).
		Float64("confidence", res.Confidence).
		Msg("Assembled extraction result")
	return res
}

func (a *Assembler) resolve(cs []models.FieldCandidate) models.FieldResult {
	if len(cs) == 0 {
		return models.FieldResult{Status: models.StatusNotFound}
	}

	distinct := mergeByValue(cs)
	top := distinct[0]
	value := top.Value
	page := top.Page
	fr := models.FieldResult{
		Value:      &value,
		Status:     models.StatusFound,
		Confidence: round(top.Confidence),
		Page:       &page,
		Provenance: &models.Provenance{
			Anchor:     top.Anchor,
			RawText:    top.RawText,
			Box:        top.Box,
			Candidates: len(cs),
		},
	}
	if len(distinct) > 1 {
		second := round(distinct[1].Confidence)
		fr.Provenance.RunnerUp = &second
		if top.Confidence-distinct[1].Confidence < a.margin {
			fr.Status = models.StatusAmbiguous
		}
	}
	return fr
}

// mergeByValue keeps the best candidate per distinct value, ordered best
// first. Repeats of one value across pages are not competing guesses.
func mergeByValue(cs []models.FieldCandidate) []models.FieldCandidate {
	sorted := make([]models.FieldCandidate, len(cs))
	copy(sorted, cs)
	sort.SliceStable(sorted, func(i, j int) bool { return better(sorted[i], sorted[j]) })

	seen := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for _, c := range sorted {
		if seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		out = append(out, c)
	}
	return out
}

// better orders candidates by confidence, then earlier page, then earlier
// position on the page.
func better(a, b models.FieldCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
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
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Value < b.Value
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
