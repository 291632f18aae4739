package research

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType is the value type of one dataset column.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldArray   FieldType = "array"
	FieldBoolean FieldType = "boolean"
)

// Valid reports whether t is one of the supported column types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldArray, FieldBoolean:
		return true
	}
	return false
}

// SchemaField describes one column of the generated dataset.
type SchemaField struct {
	Key         string    `json:"key"`
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
}

// DatasetSchema is the column layout proposed by the schema generator.
type DatasetSchema struct {
	Fields []SchemaField `json:"generated_schema"`
}

// Validate checks that the schema has uniquely named, typed columns.
func (s DatasetSchema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("dataset schema has no fields")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Key) == "" {
			return fmt.Errorf("dataset schema field without key")
		}
		if seen[f.Key] {
			return fmt.Errorf("duplicate dataset schema field %q", f.Key)
		}
		seen[f.Key] = true
		if !f.Type.Valid() {
			return fmt.Errorf("field %q has unsupported type %q", f.Key, f.Type)
		}
	}
	return nil
}

// RecordsJSONSchema returns the JSON Schema every generated dataset must satisfy:
// an array of objects carrying every column with its declared type.
func (s DatasetSchema) RecordsJSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := make([]any, 0, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Key] = map[string]any{"type": string(f.Type)}
		required = append(required, f.Key)
	}
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// Section is one part of the approved report structure.
type Section struct {
	Name        string   `json:"section_name"`
	SubSections []string `json:"sub_sections"`
}

// String renders the section the way it is handed to prompts.
func (s Section) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, sub := range s.SubSections {
		b.WriteString("\n- ")
		b.WriteString(sub)
	}
	return b.String()
}

// Query is one web-search query.
type Query struct {
	Query string `json:"query"`
}

// SearchResult holds the raw content retrieved for one query.
type SearchResult struct {
	Query      Query    `json:"query"`
	RawContent []string `json:"raw_content"`
}

// Record is one row of the generated dataset.
type Record = map[string]any

// Feedback is the reflection verdict: either a boolean or a critique.
type Feedback struct {
	Approved bool
	Text     string
}

// Affirmative reports whether the content was judged sufficient,
// either as JSON true or as the string "true".
func (f Feedback) Affirmative() bool {
	return f.Approved || strings.EqualFold(strings.TrimSpace(f.Text), "true")
}

func (f Feedback) String() string {
	if f.Text == "" && f.Approved {
		return "true"
	}
	return f.Text
}

func (f Feedback) MarshalJSON() ([]byte, error) {
	if f.Text == "" {
		return json.Marshal(f.Approved)
	}
	return json.Marshal(f.Text)
}

func (f *Feedback) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Feedback{Approved: b}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("feedback must be a boolean or a string: %w", err)
	}
	*f = Feedback{Text: s}
	return nil
}
