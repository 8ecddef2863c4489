package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SaibSameer/icmp-sub000/internal/store"
)

// TransitionError reports why a stage change was rejected.
type TransitionError struct {
	From   store.StageType
	To     store.StageType
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("stage: transition %s -> %s rejected: %s", e.From, e.To, e.Reason)
}

// ValidateTransition enforces the stage graph rules. Final stages have no
// outgoing edges and initial stages take no incoming ones; a transition
// carrying a condition must carry a non-blank one.
func ValidateTransition(from, to store.StageType, condition string) error {
	if from == store.StageFinal {
		return &TransitionError{From: from, To: to, Reason: "final stages have no outgoing transitions"}
	}
	if to == store.StageInitial {
		return &TransitionError{From: from, To: to, Reason: "initial stages take no incoming transitions"}
	}
	if condition != "" && strings.TrimSpace(condition) == "" {
		return &TransitionError{From: from, To: to, Reason: "condition is blank"}
	}
	return nil
}

// ValidTargets lists the stage types reachable from the given type.
func ValidTargets(from store.StageType) []store.StageType {
	if from == store.StageFinal {
		return nil
	}
	return []store.StageType{store.StageIntermediate, store.StageFinal}
}

// EvaluateCondition decides whether a transition fires against the
// conversation's extracted data. The empty condition always fires. Clauses
// are comma separated and all must hold: `field` checks presence,
// `field == value` and `field != value` compare the string form of the
// stored value.
func EvaluateCondition(condition string, data map[string]any) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true
	}

	for _, clause := range strings.Split(condition, ",") {
		if !evaluateClause(strings.TrimSpace(clause), data) {
			return false
		}
	}
	return true
}

func evaluateClause(clause string, data map[string]any) bool {
	if clause == "" {
		return true
	}

	if field, want, ok := splitOperator(clause, "!="); ok {
		value, present := data[field]
		return !present || stringify(value) != want
	}
	if field, want, ok := splitOperator(clause, "=="); ok {
		value, present := data[field]
		return present && stringify(value) == want
	}

	value, present := data[clause]
	return present && !isEmptyValue(value)
}

func splitOperator(clause, op string) (field, value string, ok bool) {
	idx := strings.Index(clause, op)
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(clause[:idx]), strings.TrimSpace(clause[idx+len(op):]), true
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Select picks the transition to follow: candidates sorted by priority then
// id for determinism, first passing condition wins. A nil result means the
// conversation stays on its current stage.
func Select(transitions []store.Transition, data map[string]any) *store.Transition {
	ordered := make([]store.Transition, len(transitions))
	copy(ordered, transitions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	for i := range ordered {
		if EvaluateCondition(ordered[i].Condition, data) {
			return &ordered[i]
		}
	}
	return nil
}
