package extract

import (
	"strings"

	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

// Scoring weights. Every term is scaled by the OCR confidence of the value
// span, so a candidate can never score above its weakest recognized word.
const (
	baseWeight      = 0.55
	anchorWeight    = 0.30
	proximityWeight = 0.15
	proximityDecay  = 0.25

	repairFactor    = 0.90 // value only fits after confusable repair
	substringFactor = 0.95 // value is part of a longer word
)

// slot is a value position in a search window.
type slot struct {
	text string
	box  models.BoundingBox
	conf float64
	dist int
	line int
	pos  int
}

func slotOf(w *word, dist int) slot {
	return slot{text: w.text, box: w.box, conf: w.conf, dist: dist, line: w.line, pos: w.pos}
}

type claimSet map[[2]int]bool

func (c claimSet) has(w *word) bool { return c[[2]int{w.line, w.pos}] }

// windowRuns returns the contiguous runs of words that may hold the value
// for hit: text glued to the anchor after a colon, words to the right on
// the same line, and words below the anchor's column. Runs stop at words
// claimed by another anchor. A multiline field gets a single run that
// continues from the anchor's line onto the lines below.
func windowRuns(hit anchorHit, lines [][]*word, claimed claimSet, def *schema.FieldDefinition) [][]slot {
	var runs [][]slot
	win, valueTokens := def.SearchWindow, def.ValueTokens

	var right []slot
	line := lines[hit.line]
	if last := line[hit.end]; last.tail != "" {
		s := slotOf(last, 0)
		s.text = last.tail
		right = append(right, s)
	}
	d, blocked := 0, false
	for p := hit.end + 1; p < len(line) && d < win.TokensRight; p++ {
		w := line[p]
		if claimed.has(w) {
			blocked = true
			break
		}
		if w.punct {
			continue
		}
		d++
		right = append(right, slotOf(w, d))
	}
	limit := max(win.TokensRight, valueTokens)
	if def.MaxLines > 0 {
		run := right
		if !blocked {
			run = continueRun(hit, lines, claimed, right, def.MaxLines, limit)
		}
		if len(run) > 0 {
			runs = append(runs, run)
		}
		return runs
	}
	if len(right) > 0 {
		runs = append(runs, right)
	}

	left := hit.box.X - hit.box.Height
	rightEdge := hit.box.Right() + hit.box.Width
	for o := 1; o <= win.LinesBelow && hit.line+o < len(lines); o++ {
		var run []slot
		for _, w := range lines[hit.line+o] {
			if w.box.Right() < left || (w.box.X > rightEdge && len(run) == 0) {
				continue
			}
			if claimed.has(w) || len(run) >= limit {
				break
			}
			if w.punct {
				continue
			}
			run = append(run, slotOf(w, o+len(run)))
		}
		if len(run) > 0 {
			runs = append(runs, run)
		}
	}
	return runs
}

// continueRun extends run with the words of up to maxLines lines below the
// anchor. It stops at a vertical gap wider than a line, at a line that
// opens with a label ("City:") and at any word claimed by another anchor.
func continueRun(hit anchorHit, lines [][]*word, claimed claimSet, run []slot, maxLines, limit int) []slot {
	left := hit.box.X - hit.box.Height
	bottom := hit.box.Bottom()
	d := len(run)
	for o := 1; o <= maxLines && hit.line+o < len(lines) && len(run) < limit; o++ {
		var cols []*word
		for _, w := range lines[hit.line+o] {
			if w.box.Right() >= left {
				cols = append(cols, w)
			}
		}
		if len(cols) == 0 || cols[0].box.Y-bottom > hit.box.Height || opensWithLabel(cols) {
			break
		}
		for _, w := range cols {
			if claimed.has(w) {
				return run
			}
			if len(run) >= limit {
				break
			}
			if w.punct {
				continue
			}
			d++
			run = append(run, slotOf(w, d))
			bottom = max(bottom, w.box.Bottom())
		}
	}
	return run
}

// opensWithLabel reports whether one of the first words of a line ends a
// label with a colon.
func opensWithLabel(ws []*word) bool {
	for i, w := range ws {
		if i == 3 {
			break
		}
		if strings.HasSuffix(w.text, ":") {
			return true
		}
	}
	return false
}

// spanMatch is the best value found in a window for one anchor hit.
type spanMatch struct {
	raw    string
	factor float64
	slots  []slot
}

func (m spanMatch) dist() int { return m.slots[0].dist }

func (m spanMatch) ocrConfidence() float64 {
	c := m.slots[0].conf
	for _, s := range m.slots[1:] {
		c = min(c, s.conf)
	}
	return c
}

func score(anchorScore, ocrConf float64, dist int, factor float64) float64 {
	proximity := 1 / (1 + proximityDecay*float64(dist))
	v := ocrConf * (baseWeight + anchorWeight*anchorScore + proximityWeight*proximity) * factor
	return min(max(v, 0), 1)
}

// bestValue picks the closest span with the field's value shape. For each
// start position the longest matching span wins.
func bestValue(def *schema.FieldDefinition, runs [][]slot, anchorScore float64) (spanMatch, bool) {
	var best spanMatch
	var bestScore float64
	found := false
	for _, run := range runs {
		for s := range run {
			for k := min(def.ValueTokens, len(run)-s); k >= 1; k-- {
				raw, factor, ok := matchSpan(def, run[s:s+k])
				if !ok {
					continue
				}
				m := spanMatch{raw: raw, factor: factor, slots: run[s : s+k]}
				sc := score(anchorScore, m.ocrConfidence(), m.dist(), factor)
				if !found || m.dist() < best.dist() || (m.dist() == best.dist() && sc > bestScore) {
					best, bestScore, found = m, sc, true
				}
				break
			}
		}
	}
	return best, found
}

// matchSpan tests a span against the value shape: exact text first, then
// with separators removed, then after confusable repair, and finally as a
// substring of a single word.
func matchSpan(def *schema.FieldDefinition, span []slot) (string, float64, bool) {
	parts := make([]string, len(span))
	for i, s := range span {
		parts[i] = s.text
	}
	texts := []string{strings.Join(parts, " ")}
	if len(span) > 1 {
		texts = append(texts, strings.Join(parts, ""))
	}

	for _, t := range texts {
		if v, ok := fullMatch(def, t); ok {
			return v, 1, true
		}
	}
	for _, t := range texts {
		if v, ok := fullMatch(def, repairConfusables(t)); ok {
			return v, repairFactor, true
		}
	}
	if len(span) == 1 {
		if v, ok := def.FindIn(trimValue(texts[0])); ok {
			return v, substringFactor, true
		}
	}
	return "", 0, false
}

func fullMatch(def *schema.FieldDefinition, text string) (string, bool) {
	t := trimValue(text)
	if t == "" {
		return "", false
	}
	if def.MatchFull(t) {
		return t, true
	}
	if u := strings.TrimRight(t, "."); u != t && u != "" && def.MatchFull(u) {
		return u, true
	}
	return "", false
}
