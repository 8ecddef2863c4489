package llm

import (
	"fmt"
	"strings"
)

// CallType is the purpose of a model invocation.
type CallType string

const (
	CallIntent     CallType = "intent"
	CallExtraction CallType = "extraction"
	CallResponse   CallType = "response"
)

// DefaultStageName is the sentinel the intent classifier falls back to when
// the model's answer is not in the business's stage vocabulary.
const DefaultStageName = "default"

// Temperature is fixed per call type so classification stays deterministic
// while replies keep some variety.
func temperatureFor(callType CallType) float32 {
	switch callType {
	case CallIntent:
		return 0.0
	case CallExtraction:
		return 0.3
	default:
		return 0.7
	}
}

func defaultSystemPrompt(callType CallType) string {
	switch callType {
	case CallIntent:
		return "You are a conversation stage classifier. Respond with exactly one stage name " +
			"from the provided list and nothing else. If you are unsure, respond with \"" +
			DefaultStageName + "\"."
	case CallExtraction:
		return "You extract structured data from user messages. Respond only with the " +
			"requested fields as compact JSON. Omit fields you cannot find."
	default:
		return "You are a helpful assistant for a business. Answer the user's message " +
			"concisely and courteously."
	}
}

// buildIntentTurn reformats the user turn to enumerate the candidate stages
// alongside the raw message.
func buildIntentTurn(message string, availableStages []string) string {
	var b strings.Builder
	b.WriteString("Available stages:\n")
	for _, stage := range availableStages {
		fmt.Fprintf(&b, "- %s\n", stage)
	}
	fmt.Fprintf(&b, "\nUser message: %s\n\nSelect exactly one stage name from the list above.", message)
	return b.String()
}

// cleanIntentReply normalizes a raw intent completion down to an
// in-vocabulary stage name. Anything unrecognized resolves to the sentinel
// default stage so callers never see an out-of-vocabulary name.
func cleanIntentReply(raw string, availableStages []string) string {
	line := raw
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	for _, prefix := range []string{"stage:", "Stage:", "STAGE:"} {
		line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
	}

	// Drop a trailing parenthetical confidence annotation.
	if open := strings.LastIndex(line, "("); open > 0 && strings.HasSuffix(line, ")") {
		line = strings.TrimSpace(line[:open])
	}

	line = strings.Trim(line, `"'`)

	for _, stage := range availableStages {
		if strings.EqualFold(line, stage) {
			return stage
		}
	}
	return DefaultStageName
}
