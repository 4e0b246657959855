package gep

import "fmt"

// CanonicalError reports a value the canonical encoder cannot represent.
// Path locates the value inside the record, e.g. "$.blast_radius.files".
type CanonicalError struct {
	Path   string
	Reason string
}

func (e *CanonicalError) Error() string {
	return fmt.Sprintf("cannot canonicalize %s: %s", e.Path, e.Reason)
}

// ValidationError reports a template missing a required field.
type ValidationError struct {
	TemplateID string
	Field      string
}

func (e *ValidationError) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("invalid template: missing required field %q", e.Field)
	}
	return fmt.Sprintf("invalid template %q: missing required field %q", e.TemplateID, e.Field)
}
