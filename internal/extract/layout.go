package extract

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"policyocr/pkg/models"
)

// word is one whitespace-free piece of recognized text placed in reading order.
type word struct {
	text  string // as recognized
	head  string // compact label text before the first colon
	tail  string // recognized text after the first colon
	box   models.BoundingBox
	conf  float64
	punct bool // no letters or digits
	seq   int  // input order, used for stable sorting
	line  int
	pos   int
}

func newWord(text string, box models.BoundingBox, conf float64, seq int) *word {
	w := &word{text: text, box: box, conf: conf, seq: seq, punct: !hasAlnum(text)}
	if i := strings.IndexByte(text, ':'); i >= 0 {
		w.head = compactLabel(text[:i])
		w.tail = trimValue(text[i+1:])
	} else {
		w.head = compactLabel(text)
	}
	return w
}

// splitToken breaks a token that contains whitespace into words, giving
// each a slice of the token's box proportional to its character offset.
func splitToken(t models.RecognizedToken, seq *int) []*word {
	runes := []rune(t.Text)
	total := len(runes)
	var out []*word
	start := -1
	for i := 0; i <= total; i++ {
		if i < total && !unicode.IsSpace(runes[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}
		box := t.Box
		if total > 0 && (start > 0 || i < total) {
			x0 := t.Box.X + t.Box.Width*start/total
			x1 := t.Box.X + t.Box.Width*i/total
			box.X = x0
			box.Width = max(x1-x0, 1)
		}
		out = append(out, newWord(string(runes[start:i]), box, t.Confidence, *seq))
		*seq++
		start = -1
	}
	return out
}

type band struct {
	words  []*word
	center float64
	height int
}

// layoutLines groups tokens into lines by vertical centre and orders them
// top-to-bottom, left-to-right.
func layoutLines(tokens []models.RecognizedToken) [][]*word {
	var words []*word
	seq := 0
	for _, t := range tokens {
		words = append(words, splitToken(t, &seq)...)
	}
	if len(words) == 0 {
		return nil
	}

	sort.SliceStable(words, func(i, j int) bool {
		ci, cj := words[i].box.CenterY(), words[j].box.CenterY()
		if ci != cj {
			return ci < cj
		}
		if words[i].box.X != words[j].box.X {
			return words[i].box.X < words[j].box.X
		}
		return words[i].seq < words[j].seq
	})

	var bands []*band
	for _, w := range words {
		if n := len(bands); n > 0 {
			b := bands[n-1]
			tol := 0.5 * float64(max(b.height, w.box.Height))
			if math.Abs(w.box.CenterY()-b.center) <= tol {
				b.center = (b.center*float64(len(b.words)) + w.box.CenterY()) / float64(len(b.words)+1)
				b.height = max(b.height, w.box.Height)
				b.words = append(b.words, w)
				continue
			}
		}
		bands = append(bands, &band{words: []*word{w}, center: w.box.CenterY(), height: w.box.Height})
	}

	lines := make([][]*word, len(bands))
	for li, b := range bands {
		sort.SliceStable(b.words, func(i, j int) bool {
			if b.words[i].box.X != b.words[j].box.X {
				return b.words[i].box.X < b.words[j].box.X
			}
			return b.words[i].seq < b.words[j].seq
		})
		for pi, w := range b.words {
			w.line = li
			w.pos = pi
		}
		lines[li] = b.words
	}
	return lines
}

// PageText renders tokens as text in the reading order the extractor uses,
// one line per layout line.
func PageText(tokens []models.RecognizedToken) string {
	var b strings.Builder
	for _, line := range layoutLines(tokens) {
		for i, w := range line {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(w.text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
