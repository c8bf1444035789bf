package extract

import (
	"strings"
	"unicode"

	anyascii "github.com/anyascii/go"
)

// labelText folds s to lower-case ASCII letters and digits separated by
// single spaces. It is used for anchor comparison only; values keep their
// recognized text.
func labelText(s string) string {
	s = strings.ToLower(anyascii.Transliterate(s))
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// compactLabel is labelText without separators.
func compactLabel(s string) string {
	return strings.ReplaceAll(labelText(s), " ", "")
}

func hasAlnum(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// trimValue strips separators that OCR attaches to the edges of a value.
func trimValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), " :;,|()[]{}\"'")
}

var (
	letterToDigit = map[rune]rune{
		'O': '0', 'o': '0', 'I': '1', 'l': '1', '|': '1',
		'S': '5', 's': '5', 'B': '8', 'Z': '2', 'z': '2',
	}
	digitToLetter = map[rune]rune{
		'0': 'O', '1': 'I', '5': 'S', '8': 'B', '2': 'Z',
	}
)

// repairConfusables swaps characters OCR commonly confuses (O/0, I/1, S/5,
// B/8, Z/2). A confusable letter next to digits becomes a digit and a
// confusable digit next to letters becomes a letter; characters with mixed
// or no neighbours are left alone.
func repairConfusables(s string) string {
	r := []rune(s)
	out := make([]rune, len(r))
	for i, c := range r {
		out[i] = c
		nd, nl := neighbours(r, i)
		if d, ok := letterToDigit[c]; ok && nd && !nl {
			out[i] = d
		} else if l, ok := digitToLetter[c]; ok && nl && !nd {
			out[i] = l
		}
	}
	return string(out)
}

// neighbours reports whether the characters directly beside r[i] are
// digits or letters.
func neighbours(r []rune, i int) (digit, letter bool) {
	for _, j := range []int{i - 1, i + 1} {
		if j < 0 || j >= len(r) {
			continue
		}
		switch c := r[j]; {
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsLetter(c):
			letter = true
		}
	}
	return digit, letter
}
