package stage

import (
	"errors"
	"testing"

	"github.com/SaibSameer/icmp-sub000/internal/store"
)

func TestValidateTransitionMatrix(t *testing.T) {
	tests := []struct {
		name    string
		from    store.StageType
		to      store.StageType
		wantErr bool
	}{
		{"initial to intermediate", store.StageInitial, store.StageIntermediate, false},
		{"initial to final", store.StageInitial, store.StageFinal, false},
		{"intermediate to intermediate", store.StageIntermediate, store.StageIntermediate, false},
		{"intermediate to final", store.StageIntermediate, store.StageFinal, false},
		{"final to anything", store.StageFinal, store.StageIntermediate, true},
		{"anything to initial", store.StageIntermediate, store.StageInitial, true},
		{"final to initial", store.StageFinal, store.StageInitial, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to, "")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%s, %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			if err != nil {
				var te *TransitionError
				if !errors.As(err, &te) {
					t.Errorf("error should be *TransitionError, got %T", err)
				}
			}
		})
	}
}

func TestValidateTransitionBlankCondition(t *testing.T) {
	if err := ValidateTransition(store.StageInitial, store.StageIntermediate, "   "); err == nil {
		t.Error("whitespace-only condition should be rejected")
	}
	if err := ValidateTransition(store.StageInitial, store.StageIntermediate, "name"); err != nil {
		t.Errorf("real condition rejected: %v", err)
	}
}

func TestValidTargets(t *testing.T) {
	if targets := ValidTargets(store.StageFinal); len(targets) != 0 {
		t.Errorf("final stage targets = %v, want none", targets)
	}
	for _, from := range []store.StageType{store.StageInitial, store.StageIntermediate} {
		for _, target := range ValidTargets(from) {
			if target == store.StageInitial {
				t.Errorf("ValidTargets(%s) includes initial", from)
			}
		}
	}
}

func TestEvaluateCondition(t *testing.T) {
	data := map[string]any{
		"name":    "Ada",
		"city":    "",
		"service": "botox",
		"visits":  3,
	}

	tests := []struct {
		condition string
		want      bool
	}{
		{"", true},
		{"   ", true},
		{"name", true},
		{"city", false}, // present but empty
		{"missing", false},
		{"service == botox", true},
		{"service == filler", false},
		{"service != filler", true},
		{"service != botox", false},
		{"missing != anything", true}, // absent field satisfies inequality
		{"missing == anything", false},
		{"visits == 3", true},
		{"name, service == botox", true},
		{"name, service == filler", false},
		{"name, missing", false},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			if got := EvaluateCondition(tt.condition, data); got != tt.want {
				t.Errorf("EvaluateCondition(%q) = %v, want %v", tt.condition, got, tt.want)
			}
		})
	}
}

func TestSelectPriorityOrder(t *testing.T) {
	transitions := []store.Transition{
		{ID: "t-low", ToStageID: "fallback", Condition: "", Priority: 200},
		{ID: "t-high", ToStageID: "booked", Condition: "service", Priority: 10},
	}

	selected := Select(transitions, map[string]any{"service": "botox"})
	if selected == nil || selected.ID != "t-high" {
		t.Fatalf("selected = %+v, want t-high", selected)
	}

	// Without the field, the unconditional fallback fires.
	selected = Select(transitions, map[string]any{})
	if selected == nil || selected.ID != "t-low" {
		t.Fatalf("selected = %+v, want t-low", selected)
	}
}

func TestSelectTieBreaksById(t *testing.T) {
	transitions := []store.Transition{
		{ID: "t-b", ToStageID: "second", Priority: 50},
		{ID: "t-a", ToStageID: "first", Priority: 50},
	}

	selected := Select(transitions, nil)
	if selected == nil || selected.ID != "t-a" {
		t.Fatalf("selected = %+v, want t-a on equal priority", selected)
	}
}

func TestSelectNoneFires(t *testing.T) {
	transitions := []store.Transition{
		{ID: "t-1", Condition: "email", Priority: 10},
		{ID: "t-2", Condition: "phone", Priority: 20},
	}

	if selected := Select(transitions, map[string]any{"name": "Ada"}); selected != nil {
		t.Errorf("selected = %+v, want nil when no condition fires", selected)
	}
}
