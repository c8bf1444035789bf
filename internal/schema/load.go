package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed motor.yaml
var defaultSchemaYAML []byte

//go:embed field_schema.json
var fieldSchemaJSON []byte

var (
	structureOnce   sync.Once
	structureSchema *jsonschema.Schema
	structureErr    error
)

// Load reads and validates a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Err: err}
	}
	return Parse(data, path)
}

// Default returns the embedded motor-insurance schema.
func Default() (*Schema, error) {
	return Parse(defaultSchemaYAML, "embedded")
}

// LoadOrDefault loads path, or the embedded schema when path is empty.
func LoadOrDefault(path string) (*Schema, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}

// DefaultYAML returns the embedded schema source.
func DefaultYAML() []byte {
	return bytes.Clone(defaultSchemaYAML)
}

type document struct {
	Version string    `yaml:"version"`
	Fields  fieldList `yaml:"fields"`
}

// fieldList keeps the declaration order of the fields mapping.
type fieldList []FieldDefinition

func (l *fieldList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var def FieldDefinition
		if err := node.Content[i+1].Decode(&def); err != nil {
			return fmt.Errorf("field %q: %w", node.Content[i].Value, err)
		}
		def.Name = node.Content[i].Value
		*l = append(*l, def)
	}
	return nil
}

// Parse validates data against the structural schema, then decodes and
// compiles every field definition.
func Parse(data []byte, source string) (*Schema, error) {
	if err := validateStructure(data, source); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Source: source, Err: err}
	}

	for i := range doc.Fields {
		def := &doc.Fields[i]
		if err := checkDefinition(def); err != nil {
			return nil, &ConfigurationError{Source: source, Field: def.Name, Err: err}
		}
		if err := def.compile(); err != nil {
			return nil, &ConfigurationError{Source: source, Field: def.Name, Err: err}
		}
	}

	return newSchema(doc.Version, source, doc.Fields), nil
}

func checkDefinition(def *FieldDefinition) error {
	if def.SearchWindow.TokensRight == 0 && def.SearchWindow.LinesBelow == 0 {
		return fmt.Errorf("search_window is empty")
	}
	if def.MinConfidence < 0 || def.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %v outside [0,1]", def.MinConfidence)
	}
	if !knownNormalizers[def.Normalize] {
		return fmt.Errorf("unknown normalizer %q", def.Normalize)
	}
	for _, a := range def.Anchors {
		if strings.IndexFunc(a, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			return fmt.Errorf("anchor %q has no letters or digits", a)
		}
	}
	return nil
}

func compiledStructure() (*jsonschema.Schema, error) {
	structureOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("field_schema.json", bytes.NewReader(fieldSchemaJSON)); err != nil {
			structureErr = fmt.Errorf("add schema: %w", err)
			return
		}
		structureSchema, structureErr = compiler.Compile("field_schema.json")
	})
	return structureSchema, structureErr
}

func validateStructure(data []byte, source string) error {
	sch, err := compiledStructure()
	if err != nil {
		return &ConfigurationError{Source: source, Err: err}
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &ConfigurationError{Source: source, Err: err}
	}
	// Round-trip through JSON so the validator sees canonical JSON types.
	b, err := json.Marshal(raw)
	if err != nil {
		return &ConfigurationError{Source: source, Err: fmt.Errorf("convert to json: %w", err)}
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return &ConfigurationError{Source: source, Err: fmt.Errorf("convert to json: %w", err)}
	}
	if err := sch.Validate(v); err != nil {
		return &ConfigurationError{Source: source, Err: fmt.Errorf("does not match field schema: %w", err)}
	}
	return nil
}
