package extraction

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Target types Coerce accepts. Anything else fails loudly rather than
// passing an unrecognized type through.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeDate   = "date"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// KnownTargetType reports whether Coerce accepts the type name.
func KnownTargetType(targetType string) bool {
	switch targetType {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate:
		return true
	}
	return false
}

// coerceFields converts every string value in place to the rule's target
// type. Non-string values pass through untouched.
func coerceFields(fields map[string]any, targetType string) error {
	for field, value := range fields {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		coerced, err := Coerce(raw, targetType)
		if err != nil {
			return err
		}
		fields[field] = coerced
	}
	return nil
}

// Coerce converts a raw extracted string into the requested target type.
func Coerce(raw, targetType string) (any, error) {
	trimmed := strings.TrimSpace(raw)

	switch targetType {
	case TypeString, "":
		return raw, nil
	case TypeInt:
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("extraction: coerce %q to int: %w", raw, err)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("extraction: coerce %q to float: %w", raw, err)
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(strings.ToLower(trimmed))
		if err != nil {
			return nil, fmt.Errorf("extraction: coerce %q to bool: %w", raw, err)
		}
		return b, nil
	case TypeDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("extraction: coerce %q to date: unrecognized format", raw)
	default:
		return nil, fmt.Errorf("extraction: unknown target type %q", targetType)
	}
}
