package extraction

import "testing"

func TestCombineHigherConfidenceWins(t *testing.T) {
	results := []StrategyResult{
		{Strategy: StrategyRule, Fields: map[string]any{"name": "rule-name", "city": "Austin"}},
		{Strategy: StrategyLLM, Fields: map[string]any{"name": "llm-name"}},
	}

	combined := Combine(results, nil)

	if combined["name"] != "llm-name" {
		t.Errorf("name = %v, want llm-name", combined["name"])
	}
	if combined["city"] != "Austin" {
		t.Errorf("city = %v, want Austin (only source)", combined["city"])
	}
}

func TestCombinePrecedenceBreaksTies(t *testing.T) {
	weights := map[Strategy]float64{
		StrategyLLM:     0.8,
		StrategyPattern: 0.8,
	}
	results := []StrategyResult{
		{Strategy: StrategyPattern, Fields: map[string]any{"email": "pattern@x.com"}},
		{Strategy: StrategyLLM, Fields: map[string]any{"email": "llm@x.com"}},
	}

	combined := Combine(results, weights)
	if combined["email"] != "llm@x.com" {
		t.Errorf("email = %v, want llm@x.com on equal confidence", combined["email"])
	}
}

func TestCombineBlankValuesLoseToFilledOnes(t *testing.T) {
	results := []StrategyResult{
		{Strategy: StrategyLLM, Fields: map[string]any{"phone": "   "}},
		{Strategy: StrategyPattern, Fields: map[string]any{"phone": "555-1234"}},
	}

	combined := Combine(results, nil)
	if combined["phone"] != "555-1234" {
		t.Errorf("phone = %v, want the non-blank pattern value", combined["phone"])
	}
}

func TestCombineEmitsConfidenceScores(t *testing.T) {
	results := []StrategyResult{
		{Strategy: StrategyStatistical, Fields: map[string]any{"topic": "pricing"}},
	}

	combined := Combine(results, nil)
	scores, ok := combined[ConfidenceScoresKey].(map[string]float64)
	if !ok {
		t.Fatalf("%s should be map[string]float64, got %T", ConfidenceScoresKey, combined[ConfidenceScoresKey])
	}
	score := scores["topic"]
	if score <= 0 || score > DefaultWeights[StrategyStatistical] {
		t.Errorf("topic score = %v, want in (0, %v]", score, DefaultWeights[StrategyStatistical])
	}
}

func TestCombineEmptyInput(t *testing.T) {
	combined := Combine(nil, nil)
	scores, ok := combined[ConfidenceScoresKey].(map[string]float64)
	if !ok || len(scores) != 0 {
		t.Errorf("empty input should still carry empty scores, got %v", combined)
	}
	if len(combined) != 1 {
		t.Errorf("combined should hold only the score map, got %v", combined)
	}
}

func TestQualityScoreBounds(t *testing.T) {
	small := qualityScore(map[string]any{"a": "x"})
	big := qualityScore(map[string]any{
		"a": "1", "b": "2", "c": "3", "d": "4", "e": "5", "f": "6",
	})
	if small <= 0 || small > 1 {
		t.Errorf("small score %v out of (0, 1]", small)
	}
	if big != 1.0 {
		t.Errorf("six complete fields should cap at 1.0, got %v", big)
	}
	if small >= big {
		t.Errorf("broader result set should score higher: %v >= %v", small, big)
	}
}
