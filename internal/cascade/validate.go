package cascade

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/values"
)

// validate checks extracted values against the template's validation rules.
// Violations are reported as warnings and never change a value. A malformed
// validation pattern is a *TemplateError.
func (e *Engine) validate(t *core.Template, fields []string, res *core.ExtractionResult) ([]string, error) {
	var warnings []string
	for _, field := range fields {
		rule := t.Fields[field].Validation
		if rule == nil {
			continue
		}
		v := res.Data[field]
		if v == nil {
			if rule.Required {
				warnings = append(warnings, fmt.Sprintf("%s: required value missing", field))
			}
			continue
		}
		out, err := e.checkValue(field, *v, rule)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, out...)
	}
	return warnings, nil
}

func (e *Engine) checkValue(field, v string, rule *core.ValidationRule) ([]string, error) {
	var out []string
	n := utf8.RuneCountInString(v)
	if rule.MinLength != nil && n < *rule.MinLength {
		out = append(out, fmt.Sprintf("%s: shorter than %d characters", field, *rule.MinLength))
	}
	if rule.MaxLength != nil && n > *rule.MaxLength {
		out = append(out, fmt.Sprintf("%s: longer than %d characters", field, *rule.MaxLength))
	}
	if len(rule.AllowedValues) > 0 && !containsFold(rule.AllowedValues, v) {
		out = append(out, fmt.Sprintf("%s: %q is not an allowed value", field, v))
	}
	if rule.Pattern != "" {
		ok, err := e.matcher.Match(rule.Pattern, v)
		if err != nil {
			return nil, &TemplateError{Field: field, Layer: "validation pattern", Expr: rule.Pattern, Err: err}
		}
		if !ok {
			out = append(out, fmt.Sprintf("%s: %q does not match %s", field, v, rule.Pattern))
		}
	}
	if rule.Format != "" && !formatOK(rule.Format, v) {
		out = append(out, fmt.Sprintf("%s: %q is not a valid %s", field, v, rule.Format))
	}
	return out, nil
}

func containsFold(list []string, v string) bool {
	for _, a := range list {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func formatOK(format, v string) bool {
	switch strings.ToLower(format) {
	case "numeric", "number", "currency":
		s := strings.TrimLeft(strings.TrimSpace(v), "$€£")
		switch values.Clean(s).(type) {
		case int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := parseBool(v)
		return ok
	case "email":
		_, err := mail.ParseAddress(v)
		return err == nil
	}
	return true
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1", "y", "x", "checked":
		return true, true
	case "false", "no", "0", "n", "":
		return false, true
	}
	return false, false
}
