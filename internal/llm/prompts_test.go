package llm

import (
	"strings"
	"testing"
)

func TestCleanIntentReply(t *testing.T) {
	stages := []string{"A", "B", "booking"}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare stage", "B", "B"},
		{"confidence annotation", "B (80% confident)", "B"},
		{"stage prefix", "stage: booking", "booking"},
		{"prefix and annotation", "Stage: booking (likely)", "booking"},
		{"multiline", "A\nBecause the user said hi.", "A"},
		{"quoted", `"booking"`, "booking"},
		{"case insensitive match", "BOOKING", "booking"},
		{"out of vocabulary", "C", DefaultStageName},
		{"empty", "", DefaultStageName},
		{"rambling", "I think the user wants to book an appointment", DefaultStageName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanIntentReply(tt.raw, stages); got != tt.want {
				t.Errorf("cleanIntentReply(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBuildIntentTurn(t *testing.T) {
	turn := buildIntentTurn("I want botox", []string{"greeting", "booking"})
	for _, want := range []string{"greeting", "booking", "I want botox", "exactly one"} {
		if !strings.Contains(turn, want) {
			t.Errorf("intent turn missing %q:\n%s", want, turn)
		}
	}
}

func TestTemperaturePerCallType(t *testing.T) {
	if got := temperatureFor(CallIntent); got != 0.0 {
		t.Errorf("intent temperature = %v, want 0.0", got)
	}
	if got := temperatureFor(CallExtraction); got != 0.3 {
		t.Errorf("extraction temperature = %v, want 0.3", got)
	}
	if got := temperatureFor(CallResponse); got != 0.7 {
		t.Errorf("response temperature = %v, want 0.7", got)
	}
}
