package extraction

import (
	"fmt"
	"strings"
)

// Validator checks rule sets before any extraction is attempted. Validation
// collects every problem instead of stopping at the first so a bad template
// is reported in one pass.
type Validator struct {
	knownHandlers func(name string) bool
}

// NewValidator builds a validator. knownHandlers reports whether a custom
// handler name is registered; nil accepts any non-blank handler name.
func NewValidator(knownHandlers func(name string) bool) *Validator {
	return &Validator{knownHandlers: knownHandlers}
}

// Validate rejects the whole set when any rule is missing its
// method-specific required parameters.
func (v *Validator) Validate(rules []Rule) error {
	var problems []string

	for i, rule := range rules {
		label := fmt.Sprintf("rule %d (%s)", i, rule.Method)

		switch rule.Method {
		case MethodRegex:
			if strings.TrimSpace(rule.Pattern) == "" {
				problems = append(problems, label+": missing pattern")
			}
			if strings.TrimSpace(rule.Field) == "" && len(rule.GroupFields) == 0 {
				problems = append(problems, label+": missing field")
			}
		case MethodKeyword:
			if strings.TrimSpace(rule.Field) == "" {
				problems = append(problems, label+": missing field")
			}
			if len(rule.Keywords) == 0 {
				problems = append(problems, label+": missing keywords")
			}
			for _, kw := range rule.Keywords {
				if strings.TrimSpace(kw) == "" {
					problems = append(problems, label+": blank keyword")
					break
				}
			}
		case MethodPattern:
			if strings.TrimSpace(rule.Field) == "" {
				problems = append(problems, label+": missing field")
			}
			if rule.PatternType == "" {
				problems = append(problems, label+": missing pattern_type")
			} else if !KnownPatternType(rule.PatternType) {
				problems = append(problems, fmt.Sprintf("%s: unknown pattern_type %q", label, rule.PatternType))
			}
		case MethodCustom:
			if strings.TrimSpace(rule.Handler) == "" {
				problems = append(problems, label+": missing handler")
			} else if v.knownHandlers != nil && !v.knownHandlers(rule.Handler) {
				problems = append(problems, fmt.Sprintf("%s: unregistered handler %q", label, rule.Handler))
			}
		default:
			problems = append(problems, fmt.Sprintf("rule %d: unknown method %q", i, rule.Method))
		}

		if rule.TargetType != "" && !KnownTargetType(rule.TargetType) {
			problems = append(problems, fmt.Sprintf("%s: unknown target type %q", label, rule.TargetType))
		}
	}

	if len(problems) > 0 {
		return &RuleValidationError{Problems: problems}
	}
	return nil
}
