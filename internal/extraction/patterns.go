package extraction

import "regexp"

// Built-in pattern bank for the "pattern" method. The registry is closed;
// unknown pattern types are rejected during validation.
var builtinPatterns = map[string]*regexp.Regexp{
	"email":  regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"phone":  regexp.MustCompile(`\+?\d{1,3}[\s.-]?\(?\d{2,4}\)?[\s.-]?\d{3,4}[\s.-]?\d{3,4}`),
	"date":   regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	"url":    regexp.MustCompile(`https?://[^\s<>"]+`),
	"number": regexp.MustCompile(`-?\d+(?:\.\d+)?`),
}

// KnownPatternType reports whether the pattern bank supports the given type.
func KnownPatternType(patternType string) bool {
	_, ok := builtinPatterns[patternType]
	return ok
}
