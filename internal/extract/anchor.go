package extract

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

type preparedAnchor struct {
	text    string
	compact string
	runes   int
	words   int
	tol     int
}

func prepareAnchors(def *schema.FieldDefinition) []preparedAnchor {
	out := make([]preparedAnchor, 0, len(def.Anchors))
	for _, a := range def.Anchors {
		label := labelText(a)
		compact := strings.ReplaceAll(label, " ", "")
		out = append(out, preparedAnchor{
			text:    a,
			compact: compact,
			runes:   utf8.RuneCountInString(compact),
			words:   len(strings.Fields(label)),
			tol:     def.EditTolerance(compact),
		})
	}
	return out
}

// anchorHit is an anchor occurrence: words [start, end] of one line.
type anchorHit struct {
	field  int
	anchor string
	line   int
	start  int
	end    int
	score  float64
	box    models.BoundingBox
}

func (h anchorHit) span() int { return h.end - h.start }

func (h anchorHit) overlaps(o anchorHit) bool {
	return h.line == o.line && h.start <= o.end && o.start <= h.end
}

// similarity compares OCR text with an anchor. It returns false when the
// edit distance exceeds the anchor's tolerance.
func similarity(a preparedAnchor, text string) (float64, bool) {
	n := utf8.RuneCountInString(text)
	if n == 0 || abs(n-a.runes) > a.tol {
		return 0, false
	}
	d := levenshtein.Distance(a.compact, text, nil)
	if d > a.tol {
		return 0, false
	}
	return 1 - float64(d)/float64(max(n, a.runes)), true
}

// matchAt finds the best way anchor a matches starting at word i. Anchors
// may be split or merged by OCR, so 1..words+1 consecutive words are tried.
func matchAt(a preparedAnchor, words []*word, i int) (end int, score float64, ok bool) {
	var b strings.Builder
	for j := i; j < len(words) && j <= i+a.words; j++ {
		b.WriteString(words[j].head)
		if utf8.RuneCountInString(b.String()) > a.runes+a.tol {
			break
		}
		if s, hit := similarity(a, b.String()); hit && s > score {
			end, score, ok = j, s, true
		}
		// A colon ends the label; what follows is value text.
		if strings.IndexByte(words[j].text, ':') >= 0 {
			break
		}
	}
	return end, score, ok
}

// findAnchors returns all anchor occurrences on a page. Hits that share a
// word are resolved by resolveOverlaps, whatever field they belong to.
func findAnchors(fields [][]preparedAnchor, lines [][]*word) []anchorHit {
	var hits []anchorHit
	for li, words := range lines {
		for i, w := range words {
			if w.head == "" {
				continue
			}
			for f, anchors := range fields {
				best := anchorHit{field: -1}
				for _, a := range anchors {
					end, score, ok := matchAt(a, words, i)
					if !ok {
						continue
					}
					if best.field < 0 || score > best.score || (score == best.score && end > best.end) {
						best = anchorHit{field: f, anchor: a.text, line: li, start: i, end: end, score: score}
					}
				}
				if best.field >= 0 {
					best.box = spanBox(words[best.start : best.end+1])
					hits = append(hits, best)
				}
			}
		}
	}
	return resolveOverlaps(hits)
}

// resolveOverlaps keeps at most one hit per word. Hits are taken best
// first: higher score, then longer span, so an exact "Total Premium" beats a
// fuzzy "Total OD Premium" on the same words and "Nominee Relationship"
// beats "Nominee".
func resolveOverlaps(hits []anchorHit) []anchorHit {
	ranked := make([]int, len(hits))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := hits[ranked[i]], hits[ranked[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.span() != b.span() {
			return a.span() > b.span()
		}
		if a.line != b.line {
			return a.line < b.line
		}
		if a.start != b.start {
			return a.start < b.start
		}
		return a.field < b.field
	})

	var out []anchorHit
	for _, i := range ranked {
		h := hits[i]
		free := true
		for _, k := range out {
			if k.overlaps(h) {
				free = false
				break
			}
		}
		if free {
			out = append(out, h)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.line != b.line {
			return a.line < b.line
		}
		if a.start != b.start {
			return a.start < b.start
		}
		return a.field < b.field
	})
	return out
}

func spanBox(words []*word) models.BoundingBox {
	var box models.BoundingBox
	for _, w := range words {
		box = box.Union(w.box)
	}
	return box
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
