package extraction

import (
	"fmt"
	"strconv"
	"strings"
)

// Method names an extraction strategy handler.
type Method string

const (
	MethodRegex   Method = "regex"
	MethodKeyword Method = "keyword"
	MethodPattern Method = "pattern"
	MethodCustom  Method = "custom"
)

// Rule is a declarative instruction for pulling named fields out of free text.
// Method-specific parameters live in the typed fields; GroupFields maps regex
// capture-group indexes to target field names.
type Rule struct {
	Method      Method            `json:"method"`
	Field       string            `json:"field"`
	Pattern     string            `json:"pattern,omitempty"`
	PatternType string            `json:"pattern_type,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Handler     string            `json:"handler,omitempty"`
	TargetType  string            `json:"target_type,omitempty"`
	GroupFields map[int]string    `json:"group_fields,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
}

// ParseRule builds a Rule from a raw parameter map, the shape stored in the
// extraction_rules table. Keys of the form group_{n}_field become capture
// group mappings.
func ParseRule(method, field string, params map[string]any) (Rule, error) {
	rule := Rule{
		Method: Method(method),
		Field:  field,
	}

	for key, value := range params {
		switch key {
		case "pattern":
			rule.Pattern = asString(value)
		case "pattern_type":
			rule.PatternType = asString(value)
		case "handler":
			rule.Handler = asString(value)
		case "type", "target_type":
			rule.TargetType = asString(value)
		case "keywords":
			keywords, err := asStringSlice(value)
			if err != nil {
				return Rule{}, fmt.Errorf("extraction: rule for %q: %w", field, err)
			}
			rule.Keywords = keywords
		default:
			if idx, ok := parseGroupFieldKey(key); ok {
				if rule.GroupFields == nil {
					rule.GroupFields = make(map[int]string)
				}
				rule.GroupFields[idx] = asString(value)
				continue
			}
			if rule.Params == nil {
				rule.Params = make(map[string]string)
			}
			rule.Params[key] = asString(value)
		}
	}

	return rule, nil
}

// parseGroupFieldKey recognizes keys shaped group_{n}_field.
func parseGroupFieldKey(key string) (int, bool) {
	if !strings.HasPrefix(key, "group_") || !strings.HasSuffix(key, "_field") {
		return 0, false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(key, "group_"), "_field")
	idx, err := strconv.Atoi(middle)
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func asStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("keyword list contains non-string entry %v", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("keywords must be a list, got %T", value)
	}
}
