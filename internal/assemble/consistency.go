package assemble

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"policyocr/pkg/models"
)

// Check inspects an assembled result and returns a warning, or "" when the
// result is consistent. Checks never change field values or statuses.
type Check func(*models.ExtractionResult) string

// A total matches its parts when it is within amountFloor or within
// amountTolerance of the total, whichever is larger.
const (
	amountTolerance = 0.01
	amountFloor     = 1.0
)

// DefaultChecks returns the premium and policy period checks applied to
// motor policies. GST is split either into CGST and SGST or charged as IGST.
func DefaultChecks() []Check {
	return []Check{
		SumCheck("total_premium", "net_premium", "gst"),
		AlternativeSumCheck("gst", []string{"cgst", "sgst"}, []string{"igst"}),
		SumCheck("net_premium", "od_premium", "tp_premium"),
		OrderCheck("risk_start_date", "risk_end_date"),
	}
}

// SumCheck warns when total differs from the sum of parts. It is skipped
// unless every involved field resolved to a number.
func SumCheck(total string, parts ...string) Check {
	return AlternativeSumCheck(total, parts)
}

// AlternativeSumCheck warns when total matches none of the alternative
// breakdowns. Only alternatives whose parts all resolved to a number take
// part; the check is skipped when there are none.
func AlternativeSumCheck(total string, alternatives ...[]string) Check {
	return func(r *models.ExtractionResult) string {
		want, ok := amount(r, total)
		if !ok {
			return ""
		}
		var (
			parts []string
			sum   float64
			diff  = -1.0
		)
		for _, alt := range alternatives {
			s, ok := sumOf(r, alt)
			if !ok {
				continue
			}
			d := math.Abs(want - s)
			if d <= amountFloor || d <= amountTolerance*math.Abs(want) {
				return ""
			}
			if diff < 0 || d < diff {
				parts, sum, diff = alt, s, d
			}
		}
		if diff < 0 {
			return ""
		}
		return fmt.Sprintf("%s %.2f does not match sum of %v %.2f (difference %.2f)", total, want, parts, sum, diff)
	}
}

func sumOf(r *models.ExtractionResult, parts []string) (float64, bool) {
	var sum float64
	for _, p := range parts {
		v, ok := amount(r, p)
		if !ok {
			return 0, false
		}
		sum += v
	}
	return sum, len(parts) > 0
}

// OrderCheck warns when the later date is not after the earlier one.
func OrderCheck(earlier, later string) Check {
	return func(r *models.ExtractionResult) string {
		from, ok := date(r, earlier)
		if !ok {
			return ""
		}
		to, ok := date(r, later)
		if !ok {
			return ""
		}
		if to.After(from) {
			return ""
		}
		return fmt.Sprintf("%s %s is not after %s %s", later, to.Format(time.DateOnly), earlier, from.Format(time.DateOnly))
	}
}

func amount(r *models.ExtractionResult, field string) (float64, bool) {
	v := r.Value(field)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func date(r *models.ExtractionResult, field string) (time.Time, bool) {
	v := r.Value(field)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
