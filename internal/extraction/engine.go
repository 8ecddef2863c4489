package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

// HandlerFunc implements a custom extraction method. It returns the fields it
// extracted from the message, keyed by field name.
type HandlerFunc func(ctx context.Context, message string, rule Rule) (map[string]any, error)

// Engine dispatches extraction rules to their method handlers. Custom
// handlers live in an explicit registry injected at construction time rather
// than process-wide state.
type Engine struct {
	custom    map[string]HandlerFunc
	validator *Validator
	logger    *logging.Logger
}

// NewEngine builds an engine with the built-in method handlers installed.
func NewEngine(logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		custom: make(map[string]HandlerFunc),
		logger: logger,
	}
	e.validator = NewValidator(e.hasHandler)
	return e
}

// Register adds a custom handler. Re-registering an existing name is
// rejected so configuration mistakes surface instead of silently replacing
// behavior.
func (e *Engine) Register(name string, fn HandlerFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("extraction: handler name cannot be blank")
	}
	if fn == nil {
		return fmt.Errorf("extraction: handler %q cannot be nil", name)
	}
	if _, exists := e.custom[name]; exists {
		return fmt.Errorf("extraction: handler %q already registered", name)
	}
	e.custom[name] = fn
	return nil
}

// Validator returns the rule validator bound to this engine's handler
// registry.
func (e *Engine) Validator() *Validator {
	return e.validator
}

// Extract runs every rule against the message and merges the extracted
// fields. The call is all-or-nothing: a failing handler discards fields
// already extracted by earlier rules.
func (e *Engine) Extract(ctx context.Context, message string, rules []Rule) (map[string]any, error) {
	if err := e.validator.Validate(rules); err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	for _, rule := range rules {
		extracted, err := e.apply(ctx, message, rule)
		if err != nil {
			return nil, &Error{Method: rule.Method, Err: err}
		}
		if rule.TargetType != "" {
			if err := coerceFields(extracted, rule.TargetType); err != nil {
				return nil, &Error{Method: rule.Method, Err: err}
			}
		}
		for k, v := range extracted {
			fields[k] = v
		}
	}
	return fields, nil
}

func (e *Engine) apply(ctx context.Context, message string, rule Rule) (map[string]any, error) {
	switch rule.Method {
	case MethodRegex:
		return extractRegex(message, rule)
	case MethodKeyword:
		return extractKeyword(message, rule), nil
	case MethodPattern:
		return extractPattern(message, rule), nil
	case MethodCustom:
		handler := e.custom[rule.Handler]
		if handler == nil {
			return nil, fmt.Errorf("handler %q is not registered", rule.Handler)
		}
		return handler(ctx, message, rule)
	default:
		return nil, fmt.Errorf("unknown method %q", rule.Method)
	}
}

func (e *Engine) hasHandler(name string) bool {
	_, ok := e.custom[name]
	return ok
}

// extractRegex applies the rule's pattern to the message. With capture
// groups, each group writes to the field named by group_{n}_field; without,
// the whole match writes to the rule's field. Later matches overwrite
// earlier ones.
func extractRegex(message string, rule Rule) (map[string]any, error) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", rule.Pattern, err)
	}
	return matchAll(re, message, rule), nil
}

func extractPattern(message string, rule Rule) map[string]any {
	re := builtinPatterns[rule.PatternType]
	return matchAll(re, message, rule)
}

func matchAll(re *regexp.Regexp, message string, rule Rule) map[string]any {
	fields := make(map[string]any)
	for _, match := range re.FindAllStringSubmatch(message, -1) {
		if re.NumSubexp() == 0 {
			fields[rule.Field] = match[0]
			continue
		}
		for group := 1; group < len(match); group++ {
			target, ok := rule.GroupFields[group]
			if !ok || target == "" {
				continue
			}
			fields[target] = match[group]
		}
	}
	return fields
}

// extractKeyword writes the first matching keyword, in declared order, to
// the rule's field.
func extractKeyword(message string, rule Rule) map[string]any {
	lowered := strings.ToLower(message)
	for _, keyword := range rule.Keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return map[string]any{rule.Field: keyword}
		}
	}
	return nil
}
