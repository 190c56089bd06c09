package domain

import (
	"fmt"
	"math"
	"strings"
)

// SchemaViolation is a single field-level constraint failure.
type SchemaViolation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (v SchemaViolation) Error() string {
	return v.Field + ": " + v.Rule
}

// ValidationError aggregates every violation found in one candidate.
type ValidationError struct {
	Kind       RecordKind
	Violations []SchemaViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Error())
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(parts, "; "))
}

// Unwrap exposes the individual violations to errors.Is/As.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Violations))
	for _, v := range e.Violations {
		errs = append(errs, v)
	}
	return errs
}

// Fields returns the offending field names in report order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func violationsError(kind RecordKind, vs []SchemaViolation) error {
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Kind: kind, Violations: vs}
}

func checkProbability(field string, value float64) (SchemaViolation, bool) {
	if math.IsNaN(value) || value < 0 || value > 1 {
		return SchemaViolation{
			Field: field,
			Rule:  fmt.Sprintf("value %v outside [0,1]", value),
		}, false
	}
	return SchemaViolation{}, true
}
