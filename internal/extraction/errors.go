package extraction

import (
	"fmt"
	"strings"
)

// Error wraps a handler failure with the method that produced it. A failed
// handler aborts the whole extract call; partial results are discarded.
type Error struct {
	Method Method
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction: method %q failed: %v", e.Method, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RuleValidationError reports every invalid rule in a set at once.
type RuleValidationError struct {
	Problems []string
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("extraction: invalid rules: %s", strings.Join(e.Problems, "; "))
}
