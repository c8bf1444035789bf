package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"policyocr/internal/schema"
)

// normalizeValue applies the field's normalizer. When the value cannot be
// normalized the trimmed recognized text is returned unchanged.
func normalizeValue(kind, raw string) string {
	raw = strings.Join(strings.Fields(raw), " ")
	switch kind {
	case schema.NormalizeDate:
		if v, ok := NormalizeDate(raw); ok {
			return v
		}
	case schema.NormalizeAmount:
		if v, ok := NormalizeAmount(raw); ok {
			return v
		}
	case schema.NormalizeUpper:
		return strings.ToUpper(raw)
	case schema.NormalizeUpperCompact:
		return strings.ToUpper(strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || r == '-' || r == '.' || r == '/' {
				return -1
			}
			return r
		}, raw))
	case schema.NormalizeDigits:
		if v := strings.Map(keepDigits, raw); v != "" {
			return v
		}
	case schema.NormalizeLower:
		return strings.ToLower(raw)
	}
	return raw
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

var (
	dmyPattern  = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})$`)
	ymdPattern  = regexp.MustCompile(`^(\d{4})[/.\-](\d{1,2})[/.\-](\d{1,2})$`)
	dMonPattern = regexp.MustCompile(`^(\d{1,2})[ \-]?([A-Za-z]{3,9})[ \-,]+(\d{4})$`)

	months = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// NormalizeDate converts the date layouts found on policy documents to
// YYYY-MM-DD. Numeric dates are read day first unless only the month-first
// reading is valid. Two-digit years below 50 belong to the 2000s.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if m := dmyPattern.FindStringSubmatch(s); m != nil {
		d, mo, y := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if len(m[3]) == 2 {
			if y < 50 {
				y += 2000
			} else {
				y += 1900
			}
		}
		if mo > 12 && d <= 12 {
			d, mo = mo, d
		}
		return formatDate(y, mo, d)
	}
	if m := ymdPattern.FindStringSubmatch(s); m != nil {
		return formatDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dMonPattern.FindStringSubmatch(s); m != nil {
		name := strings.ToLower(m[2])
		mo, ok := months[name[:3]]
		if !ok {
			return "", false
		}
		return formatDate(atoi(m[3]), int(mo), atoi(m[1]))
	}
	return "", false
}

func formatDate(y, m, d int) (string, bool) {
	if m < 1 || m > 12 || d < 1 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var amountNoise = strings.NewReplacer(
	"rs.", "", "rs", "", "inr", "", "₹", "", "$", "",
	"/-", "", "rupees", "", "only", "", ",", "", " ", "",
)

// NormalizeAmount strips currency markers and grouping separators and
// returns the amount with two decimals.
func NormalizeAmount(s string) (string, bool) {
	clean := amountNoise.Replace(strings.ToLower(strings.TrimSpace(s)))
	clean = strings.TrimSuffix(clean, ".")
	if clean == "" {
		return "", false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v < 0 {
		return "", false
	}
	return fmt.Sprintf("%.2f", v), true
}
