package store

import (
	"errors"
	"time"
)

// Sentinel errors returned by the repositories.
var (
	ErrConversationNotFound = errors.New("store: conversation not found")
	ErrStageNotFound        = errors.New("store: stage not found")
	ErrTemplateNotFound     = errors.New("store: template not found")
	ErrProcessLogNotFound   = errors.New("store: process log not found")
)

// Conversation is one user's dialogue with a business, pinned to a stage.
type Conversation struct {
	ID             string
	BusinessID     string
	UserID         string
	CurrentStageID string
	CreatedAt      time.Time
	LastUpdated    time.Time
}

// StageType classifies a stage within a business's flow.
type StageType string

const (
	StageInitial      StageType = "initial"
	StageIntermediate StageType = "intermediate"
	StageFinal        StageType = "final"
)

// Stage is one named step in a business's configured conversation flow.
type Stage struct {
	ID                   string
	BusinessID           string
	Name                 string
	Type                 StageType
	ExtractionTemplateID string
	SelectionTemplateID  string
	ResponseTemplateID   string
	CreatedAt            time.Time
}

// Transition is a directed edge between stages, optionally gated by a
// condition over extracted data. Lower priority numbers evaluate first.
type Transition struct {
	ID          string
	FromStageID string
	ToStageID   string
	Condition   string
	Priority    int
}

// Message is a single transcript entry.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// LLMCall is one physical model invocation. Rows are append-only; retries
// produce distinct rows with fresh ids.
type LLMCall struct {
	ID             string
	BusinessID     string
	ConversationID string
	CallType       string
	InputText      string
	SystemPrompt   string
	ResponseText   string
	InputTokens    int
	OutputTokens   int
	CreatedAt      time.Time
}

// ProcessLog tracks one pipeline invocation through its phases.
type ProcessLog struct {
	ID             string
	BusinessID     string
	ConversationID string
	Status         string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ControlScope identifies what an AI-stop setting applies to. Exactly one of
// the two fields is set.
type ControlScope struct {
	ConversationID string
	UserID         string
}

// ControlSetting records an AI-stop window. Resume flips IsStopped instead of
// deleting so stop history is retained.
type ControlSetting struct {
	ID             string
	ConversationID string
	UserID         string
	IsStopped      bool
	StopTime       *time.Time
	ExpirationTime *time.Time
	UpdatedAt      time.Time
}
