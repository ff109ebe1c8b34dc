package config

import (
	"fmt"
	"strings"
)

// NotAnArray is the reason given when the top-level value is not a list.
const NotAnArray = "Config is not an Array"

// Violation types recorded in FieldError.Type.
const (
	ViolationRequired      = "required"
	ViolationType          = "type"
	ViolationMinLength     = "minLength"
	ViolationMinItems      = "minItems"
	ViolationMinProperties = "minProperties"
	ViolationAdditional    = "additionalProperties"
	ViolationOther         = "invalid"
)

// violationPatterns maps validator descriptions to a violation type. Order
// matters: the minItems text also contains the minProperties fragment.
var violationPatterns = []struct {
	fragment string
	kind     string
}{
	{"is missing and required", ViolationRequired},
	{"must be of type", ViolationType},
	{"string length must be greater", ViolationMinLength},
	{"array must have at least", ViolationMinItems},
	{"must have at least", ViolationMinProperties},
	{"additional property", ViolationAdditional},
}

func violationType(description string) string {
	for _, p := range violationPatterns {
		if strings.Contains(description, p.fragment) {
			return p.kind
		}
	}
	return ViolationOther
}

// FieldError is one schema violation.
type FieldError struct {
	Field       string `json:"field"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Reason explains why a config file was rejected: a parser message, NotAnArray,
// or per-field schema violations. Index is the failing entry, or -1 when the
// file as a whole was rejected.
type Reason struct {
	Message string       `json:"message,omitempty"`
	Index   int          `json:"index"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (r Reason) String() string {
	if len(r.Fields) == 0 {
		return r.Message
	}
	lines := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		lines = append(lines, fmt.Sprintf("entry %d: %s: %s", r.Index, f.Field, f.Description))
	}
	return strings.Join(lines, "\n  ")
}

// InvalidError carries the Reason a config was rejected. It is always
// returned wrapped in an errors.Error with code CONFIG_INVALID.
type InvalidError struct {
	Reason Reason
}

func (e *InvalidError) Error() string {
	return e.Reason.String()
}
