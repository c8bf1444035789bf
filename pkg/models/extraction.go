package models

import "time"

type FieldStatus string

const (
	StatusFound     FieldStatus = "found"
	StatusAmbiguous FieldStatus = "ambiguous"
	StatusNotFound  FieldStatus = "not_found"
)

// FieldCandidate is a provisional value for a field found on one page.
type FieldCandidate struct {
	Field   string      `json:"field"`
	Value   string      `json:"value"`    // normalized value
	RawText string      `json:"raw_text"` // text as recognized
	Page    int         `json:"page"`
	Box     BoundingBox `json:"box"`

	// Scoring inputs and result
	Confidence    float64 `json:"confidence"`
	OCRConfidence float64 `json:"ocr_confidence"` // minimum across the value span
	AnchorScore   float64 `json:"anchor_score"`
	Anchor        string  `json:"anchor"`
	Distance      int     `json:"distance"` // anchor-to-value distance in words

	// Reading position of the first value word on its page
	Line     int `json:"line"`
	Position int `json:"position"`
}

// Provenance describes where a resolved value came from.
type Provenance struct {
	Anchor     string      `json:"anchor"`
	RawText    string      `json:"raw_text"`
	Box        BoundingBox `json:"box"`
	Candidates int         `json:"candidates"`
	RunnerUp   *float64    `json:"runner_up,omitempty"` // confidence of the second best distinct value
}

type FieldResult struct {
	Value      *string     `json:"value"`
	Status     FieldStatus `json:"status"`
	Confidence float64     `json:"confidence"`
	Page       *int        `json:"page"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// ExtractionResult is the document-level output. Every field of the schema
// used for the run appears in Fields exactly once.
type ExtractionResult struct {
	DocumentID    string                 `json:"document_id"`
	SchemaVersion string                 `json:"schema_version"`
	Fields        map[string]FieldResult `json:"fields"`
	Order         []string               `json:"field_order"`
	Confidence    float64                `json:"confidence"`
	PageCount     int                    `json:"page_count"`
	Warnings      []string               `json:"warnings,omitempty"`
	ProcessedAt   time.Time              `json:"processed_at"`
	Duration      time.Duration          `json:"duration_ns"`
}

// Value returns the resolved value of a field, or "" when the field is
// unknown or not found.
func (r *ExtractionResult) Value(field string) string {
	f, ok := r.Fields[field]
	if !ok || f.Value == nil {
		return ""
	}
	return *f.Value
}

// Counts returns how many fields ended in each status.
func (r *ExtractionResult) Counts() map[FieldStatus]int {
	counts := map[FieldStatus]int{StatusFound: 0, StatusAmbiguous: 0, StatusNotFound: 0}
	for _, f := range r.Fields {
		counts[f.Status]++
	}
	return counts
}
