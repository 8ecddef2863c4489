package extraction

import (
	"math"
	"strings"
)

// Strategy identifies where a result set came from when several extraction
// approaches ran against the same message.
type Strategy string

const (
	StrategyLLM         Strategy = "llm"
	StrategyPattern     Strategy = "pattern"
	StrategyRule        Strategy = "rule"
	StrategyStatistical Strategy = "statistical"
)

// ConfidenceScoresKey names the side channel carrying per-field scores in a
// combined result.
const ConfidenceScoresKey = "_confidence_scores"

// DefaultWeights are the base weights per strategy before the quality score
// is applied.
var DefaultWeights = map[Strategy]float64{
	StrategyLLM:         0.9,
	StrategyPattern:     0.8,
	StrategyRule:        0.7,
	StrategyStatistical: 0.5,
}

// strategyPrecedence breaks confidence ties deterministically.
var strategyPrecedence = []Strategy{StrategyLLM, StrategyPattern, StrategyRule, StrategyStatistical}

// StrategyResult is one strategy's extracted field set.
type StrategyResult struct {
	Strategy Strategy
	Fields   map[string]any
}

// Combine merges per-strategy results into one field map, keeping for each
// field the value from the strategy with the higher confidence
// (base weight x quality score). Ties go to the earlier strategy in the
// fixed precedence order. The returned map always carries the
// _confidence_scores side channel.
func Combine(results []StrategyResult, weights map[Strategy]float64) map[string]any {
	if weights == nil {
		weights = DefaultWeights
	}

	combined := make(map[string]any)
	scores := make(map[string]float64)

	for _, strategy := range strategyPrecedence {
		for _, result := range results {
			if result.Strategy != strategy || len(result.Fields) == 0 {
				continue
			}
			confidence := weights[strategy] * qualityScore(result.Fields)
			for field, value := range result.Fields {
				// Strictly greater: first-seen in precedence order wins ties.
				if existing, seen := scores[field]; seen && confidence <= existing {
					continue
				}
				combined[field] = value
				scores[field] = confidence
			}
		}
	}

	combined[ConfidenceScoresKey] = scores
	return combined
}

// qualityScore penalizes result sets containing blank values and scales up
// with the number of extracted fields, capped at 1.0.
func qualityScore(fields map[string]any) float64 {
	if len(fields) == 0 {
		return 0
	}

	nonBlank := 0
	for _, value := range fields {
		if !isBlank(value) {
			nonBlank++
		}
	}

	completeness := float64(nonBlank) / float64(len(fields))
	breadth := math.Min(1.0, 0.6+0.1*float64(len(fields)))
	return math.Min(completeness*breadth, 1.0)
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
