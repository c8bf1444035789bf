// Package schema loads the declarative field definitions that drive extraction.
//
// A schema is a versioned YAML document mapping field names to anchors, a
// value shape and a search window:
//
//	version: "2024.1"
//	fields:
//	  policy_number:
//	    anchors: ["Policy No", "Policy Number"]
//	    value_shape: '[A-Z]{3}-\d{5}'
//	    search_window: {tokens_right: 3, lines_below: 1}
//	    min_confidence: 0.4
//
// Schemas are validated and compiled once at load time and are read-only
// afterwards, so a single *Schema can be shared by concurrent documents.
package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Value normalizers understood by the extractor.
const (
	NormalizeNone         = ""
	NormalizeDate         = "date"
	NormalizeAmount       = "amount"
	NormalizeUpper        = "upper"
	NormalizeUpperCompact = "upper_compact"
	NormalizeDigits       = "digits"
	NormalizeLower        = "lower"
)

var knownNormalizers = map[string]bool{
	NormalizeNone:         true,
	NormalizeDate:         true,
	NormalizeAmount:       true,
	NormalizeUpper:        true,
	NormalizeUpperCompact: true,
	NormalizeDigits:       true,
	NormalizeLower:        true,
}

type SearchWindow struct {
	TokensRight int `yaml:"tokens_right" json:"tokens_right"`
	LinesBelow  int `yaml:"lines_below" json:"lines_below"`
}

// FieldDefinition describes how to find one field.
type FieldDefinition struct {
	Name          string       `yaml:"-" json:"name"`
	Anchors       []string     `yaml:"anchors" json:"anchors"`
	ValueShape    string       `yaml:"value_shape" json:"value_shape"`
	SearchWindow  SearchWindow `yaml:"search_window" json:"search_window"`
	MinConfidence float64      `yaml:"min_confidence" json:"min_confidence"`

	// Optional tuning
	MaxEdits        *int   `yaml:"max_edits,omitempty" json:"max_edits,omitempty"`
	ValueTokens     int    `yaml:"value_tokens,omitempty" json:"value_tokens,omitempty"`
	Normalize       string `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	CaseInsensitive bool   `yaml:"case_insensitive,omitempty" json:"case_insensitive,omitempty"`

	// MaxLines lets a value continue onto up to this many lines below the
	// anchor, as addresses do. Zero keeps values on one line.
	MaxLines int `yaml:"max_lines,omitempty" json:"max_lines,omitempty"`

	full   *regexp.Regexp
	search *regexp.Regexp
}

func (d *FieldDefinition) compile() error {
	if _, err := regexp.Compile(d.ValueShape); err != nil {
		return fmt.Errorf("value_shape: %w", err)
	}
	flags := ""
	if d.CaseInsensitive {
		flags = "(?i)"
	}
	d.full = regexp.MustCompile(flags + `^(?:` + d.ValueShape + `)$`)
	d.search = regexp.MustCompile(flags + `(?:` + d.ValueShape + `)`)
	if d.ValueTokens == 0 {
		d.ValueTokens = 1
	}
	return nil
}

// MatchFull reports whether s as a whole has the field's value shape.
func (d *FieldDefinition) MatchFull(s string) bool {
	return d.full.MatchString(s)
}

// FindIn returns the leftmost substring of s with the field's value shape
// that stands on its own. A match glued to a letter, digit, '%' or '@' is
// part of a different token, such as the "18" in "@18%", and is skipped.
func (d *FieldDefinition) FindIn(s string) (string, bool) {
	for _, loc := range d.search.FindAllStringIndex(s, -1) {
		if loc[0] == loc[1] {
			continue
		}
		before, _ := utf8.DecodeLastRuneInString(s[:loc[0]])
		after, _ := utf8.DecodeRuneInString(s[loc[1]:])
		if gluesTo(before) || gluesTo(after) {
			continue
		}
		return s[loc[0]:loc[1]], true
	}
	return "", false
}

func gluesTo(r rune) bool {
	return r == '%' || r == '@' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// EditTolerance returns the maximum Levenshtein distance accepted when
// comparing OCR text against an anchor of the given compact form.
func (d *FieldDefinition) EditTolerance(compactAnchor string) int {
	if d.MaxEdits != nil {
		return *d.MaxEdits
	}
	n := utf8.RuneCountInString(compactAnchor)
	switch {
	case n < 5:
		return 0
	case n < 9:
		return 1
	default:
		return 2
	}
}

// Schema is an immutable, validated set of field definitions.
type Schema struct {
	version string
	source  string
	fields  []FieldDefinition
	index   map[string]int
}

func newSchema(version, source string, fields []FieldDefinition) *Schema {
	s := &Schema{
		version: version,
		source:  source,
		fields:  fields,
		index:   make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

func (s *Schema) Version() string { return s.version }

func (s *Schema) Source() string { return s.source }

func (s *Schema) Len() int { return len(s.fields) }

// Fields returns the definitions in declaration order.
func (s *Schema) Fields() []FieldDefinition {
	out := make([]FieldDefinition, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns the definition at declaration index i.
func (s *Schema) Field(i int) *FieldDefinition {
	return &s.fields[i]
}

// Lookup returns the definition with the given name.
func (s *Schema) Lookup(name string) (*FieldDefinition, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return &s.fields[i], true
}

// Index returns the declaration index of name, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Select returns a schema restricted to the named fields, keeping
// declaration order. An empty selection returns s itself.
func (s *Schema) Select(names []string) (*Schema, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := s.index[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, n)
		}
		want[n] = true
	}
	if len(want) == 0 || len(want) == len(s.fields) {
		return s, nil
	}
	var fields []FieldDefinition
	for _, f := range s.fields {
		if want[f.Name] {
			fields = append(fields, f)
		}
	}
	return newSchema(s.version, s.source, fields), nil
}

// SplitFields parses a comma separated field list as accepted by Select.
// Blank entries are dropped and an empty list yields nil.
func SplitFields(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
