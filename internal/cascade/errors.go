package cascade

import (
	"errors"
	"fmt"
)

// Template authoring defects.
var (
	ErrCheckboxTarget  = errors.New("checkbox group selector must resolve to a container of inputs")
	ErrCaptureGroup    = errors.New("capture group out of range")
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrBadDocument     = errors.New("document cannot be extracted")
)

// TemplateError reports a template or document defect that makes a field
// impossible to evaluate. Misses are not errors.
type TemplateError struct {
	Field string
	Layer string
	Expr  string
	Err   error
}

func (e *TemplateError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("template error: %v", e.Err)
	case e.Expr == "":
		return fmt.Sprintf("template field %q (%s): %v", e.Field, e.Layer, e.Err)
	default:
		return fmt.Sprintf("template field %q: invalid %s %q: %v", e.Field, e.Layer, e.Expr, e.Err)
	}
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}
