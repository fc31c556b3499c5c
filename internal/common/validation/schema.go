// Package validation checks job variables against JSON schemas.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins the errors into one line for job failure messages.
func (r *ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Validator holds a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles a schema given as a decoded JSON object.
func NewValidator(schema map[string]interface{}) (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// MustValidator is NewValidator for schemas compiled into the binary.
func MustValidator(schemaJSON string) *Validator {
	var schema map[string]interface{}
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		panic(fmt.Sprintf("validation: bad built-in schema: %v", err))
	}
	v, err := NewValidator(schema)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateJSON validates a raw JSON document, such as Zeebe job variables.
func (v *Validator) ValidateJSON(raw string) *ValidationResult {
	return v.validate(gojsonschema.NewStringLoader(raw))
}

// Validate validates an in-memory value.
func (v *Validator) Validate(data interface{}) *ValidationResult {
	return v.validate(gojsonschema.NewGoLoader(data))
}

func (v *Validator) validate(doc gojsonschema.JSONLoader) *ValidationResult {
	res, err := v.schema.Validate(doc)
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_JSON"}},
		}
	}
	if res.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		errs = append(errs, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })

	return &ValidationResult{Valid: false, Errors: errs}
}

// SchemaSource looks up registered input schemas by task type.
type SchemaSource interface {
	InputSchemaFor(taskType string) (map[string]interface{}, bool)
}

// ForTask prefers the schema registered for taskType and falls back to the
// built-in one when none is registered or it does not compile.
func ForTask(src SchemaSource, taskType, builtin string) *Validator {
	if src != nil {
		if schema, ok := src.InputSchemaFor(taskType); ok {
			if v, err := NewValidator(schema); err == nil {
				return v
			}
		}
	}
	return MustValidator(builtin)
}
