// Package values normalizes extracted cell text into typed column values.
package values

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leapstack-labs/inspector/pkg/core"
)

// Clean normalizes a raw cell value. Empty input becomes nil. Numeric text,
// once stripped of a leading apostrophe, percent signs, thousands separators
// and spaces, becomes int64 or float64. Anything else is returned trimmed with
// a leading apostrophe removed.
func Clean(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return cleanString(x)
	case *string:
		if x == nil {
			return nil
		}
		return cleanString(*x)
	default:
		return v
	}
}

func cleanString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	text := strings.TrimSpace(strings.TrimPrefix(s, "'"))

	numeric := strings.NewReplacer("%", "", ",", "", " ", "").Replace(text)
	if numeric != "" {
		if n, err := strconv.ParseInt(numeric, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(numeric, 64); err == nil && isDecimalText(numeric) {
			return f
		}
	}
	if text == "" {
		return nil
	}
	return text
}

// isDecimalText rejects forms strconv accepts that are not table numbers
// ("inf", "nan", hex floats).
func isDecimalText(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

// CleanRecord applies Clean to every value of a record.
func CleanRecord(r core.Record) core.Record {
	out := make(core.Record, len(r))
	for k, v := range r {
		out[k] = Clean(v)
	}
	return out
}

// IsAlphabetic reports whether s contains letters and no digits.
func IsAlphabetic(s string) bool {
	hasLetter := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			return false
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		}
	}
	return hasLetter
}

// RepairDecimal turns a bare fractional ".00" into "0.00".
func RepairDecimal(s string) string {
	if strings.HasPrefix(s, ".") {
		return "0" + s
	}
	if strings.HasPrefix(s, "-.") {
		return "-0" + s[1:]
	}
	return s
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 3:04 PM",
}

// Coerce converts a cleaned value to the column's data type. Values that
// cannot be converted yield an error; callers log it and store NULL.
func Coerce(v any, dt core.DataType) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, isString := v.(string)

	switch dt {
	case core.DataTypeText, "":
		if isString {
			return s, nil
		}
		return fmt.Sprint(v), nil

	case core.DataTypeInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case float64:
			if x != float64(int64(x)) {
				return nil, fmt.Errorf("%v is not a whole number", x)
			}
			return int64(x), nil
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(fmt.Sprint(v), ",", ""))
		if err != nil || !d.IsInteger() {
			return nil, fmt.Errorf("%q is not an integer", fmt.Sprint(v))
		}
		return d.IntPart(), nil

	case core.DataTypeNumeric:
		switch x := v.(type) {
		case int64:
			return decimal.NewFromInt(x), nil
		case int:
			return decimal.NewFromInt(int64(x)), nil
		case float64:
			return decimal.NewFromFloat(x), nil
		}
		d, err := decimal.NewFromString(RepairDecimal(strings.ReplaceAll(fmt.Sprint(v), ",", "")))
		if err != nil {
			return nil, fmt.Errorf("%q is not numeric: %w", fmt.Sprint(v), err)
		}
		return d, nil

	case core.DataTypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
		switch strings.ToLower(strings.TrimSpace(fmt.Sprint(v))) {
		case "true", "yes", "y", "1", "x", "checked", "on":
			return true, nil
		case "false", "no", "n", "0", "off", "":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", fmt.Sprint(v))

	case core.DataTypeDate:
		t, err := parseTime(fmt.Sprint(v), dateLayouts)
		if err != nil {
			return nil, err
		}
		return t.Format("2006-01-02"), nil

	case core.DataTypeTimestamp:
		t, err := parseTime(fmt.Sprint(v), append(timestampLayouts, dateLayouts...))
		if err != nil {
			return nil, err
		}
		return t, nil

	case core.DataTypeUUID:
		id, err := uuid.Parse(strings.TrimSpace(fmt.Sprint(v)))
		if err != nil {
			return nil, fmt.Errorf("%q is not a uuid: %w", fmt.Sprint(v), err)
		}
		return id.String(), nil

	case core.DataTypeJSON:
		if isString {
			if !json.Valid([]byte(s)) {
				return nil, fmt.Errorf("%q is not valid json", s)
			}
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("unknown data type %q", dt)
}

func parseTime(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognized date", s)
}
