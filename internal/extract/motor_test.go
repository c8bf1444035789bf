package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

func newMotorExtractor(t *testing.T) *Extractor {
	t.Helper()
	s, err := schema.Default()
	require.NoError(t, err)
	return New(s)
}

func values(cs []models.FieldCandidate, field string) []string {
	var out []string
	for _, c := range byField(cs, field) {
		out = append(out, c.Value)
	}
	return out
}

func TestExactAnchorOwnsWordsOfFuzzyAnchor(t *testing.T) {
	e := newMotorExtractor(t)

	// "Total Premium" is within two edits of "Total OD Premium" and
	// "Total TP Premium".
	cs := e.ExtractPage(0, []models.RecognizedToken{
		tok("Net Premium", 10, 10, 110, 20, 0.95),
		tok("10,000.00", 200, 10, 90, 20, 0.95),
		tok("Total Premium (Rs.)", 10, 40, 180, 20, 0.95),
		tok("11,800.00", 200, 40, 90, 20, 0.95),
	})

	assert.Equal(t, []string{"10000.00"}, values(cs, "net_premium"))
	assert.Equal(t, []string{"11800.00"}, values(cs, "total_premium"))
	assert.Empty(t, byField(cs, "od_premium"))
	assert.Empty(t, byField(cs, "tp_premium"))

	total := byField(cs, "total_premium")
	require.Len(t, total, 1)
	assert.Equal(t, "Total Premium", total[0].Anchor)
	assert.Equal(t, 1.0, total[0].AnchorScore)
}

func TestFuzzyAnchorStillMatchesAlone(t *testing.T) {
	e := newMotorExtractor(t)

	cs := e.ExtractPage(0, []models.RecognizedToken{
		tok("Total 0D Premium: 8,200.00", 10, 10, 260, 20, 0.95),
	})
	assert.Equal(t, []string{"8200.00"}, values(cs, "od_premium"))
	assert.Empty(t, byField(cs, "total_premium"))
}

func TestRateIsNotTakenAsAmount(t *testing.T) {
	e := newMotorExtractor(t)

	tests := []struct {
		line  string
		field string
		want  string
	}{
		{"GST @18%: 1,800.00", "gst", "1800.00"},
		{"CGST @ 9% 900.00", "cgst", "900.00"},
		{"SGST @9%: Rs. 900.00", "sgst", "900.00"},
		{"IGST (18%) 1,800.00", "igst", "1800.00"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cs := e.ExtractPage(0, []models.RecognizedToken{
				tok(tt.line, 10, 10, 20*len(tt.line), 20, 0.95),
			})
			assert.Equal(t, []string{tt.want}, values(cs, tt.field))
		})
	}
}

func TestMultilineAddress(t *testing.T) {
	e := newMotorExtractor(t)

	cs := e.ExtractPage(0, []models.RecognizedToken{
		tok("Address:", 10, 10, 80, 20, 0.95),
		tok("12, MG Road,", 100, 10, 120, 20, 0.95),
		tok("Indiranagar", 100, 40, 110, 20, 0.93),
		tok("Bengaluru", 100, 70, 100, 20, 0.95),
		// a blank line ends the address
		tok("Karnataka", 100, 130, 100, 20, 0.95),
		tok("Mobile No: 9876543210", 10, 160, 220, 20, 0.95),
	})

	addr := byField(cs, "address")
	require.Len(t, addr, 1)
	assert.Equal(t, "12, MG Road, Indiranagar Bengaluru", addr[0].RawText)
	assert.Equal(t, "12, MG ROAD, INDIRANAGAR BENGALURU", addr[0].Value)
	assert.Equal(t, 0, addr[0].Line)
	assert.Equal(t, 0.93, addr[0].OCRConfidence)
	assert.Equal(t, models.BoundingBox{X: 100, Y: 10, Width: 120, Height: 80}, addr[0].Box)

	assert.Equal(t, []string{"9876543210"}, values(cs, "mobile_number"))
}

func TestMultilineStopsAtLabel(t *testing.T) {
	e := newMotorExtractor(t)

	cs := e.ExtractPage(0, []models.RecognizedToken{
		tok("Address:", 10, 10, 80, 20, 0.95),
		tok("Flat 4B, Lake View Apartments", 10, 40, 290, 20, 0.95),
		tok("Ward: 12", 10, 70, 80, 20, 0.95),
	})

	assert.Equal(t, []string{"FLAT 4B, LAKE VIEW APARTMENTS"}, values(cs, "address"))

	// another label on the anchor line ends the value there
	cs = e.ExtractPage(0, []models.RecognizedToken{
		tok("Address: 5 Park Street City: Kolkata", 10, 10, 360, 20, 0.95),
		tok("Near Metro", 10, 40, 100, 20, 0.95),
	})
	assert.Equal(t, []string{"5 PARK STREET"}, values(cs, "address"))
	assert.Equal(t, []string{"KOLKATA"}, values(cs, "city"))
}

func TestSingleLineFieldIgnoresContinuation(t *testing.T) {
	e := newMotorExtractor(t)

	cs := e.ExtractPage(0, []models.RecognizedToken{
		tok("Insured Name: Ramesh", 10, 10, 200, 20, 0.95),
		tok("Kumar", 140, 40, 50, 20, 0.95),
	})

	// each line below is a run of its own for single line fields
	assert.Equal(t, []string{"RAMESH"}, values(cs, "insured_name"))
}
