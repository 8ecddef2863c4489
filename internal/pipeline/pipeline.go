package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SaibSameer/icmp-sub000/internal/extraction"
	"github.com/SaibSameer/icmp-sub000/internal/llm"
	"github.com/SaibSameer/icmp-sub000/internal/observability/metrics"
	"github.com/SaibSameer/icmp-sub000/internal/stage"
	"github.com/SaibSameer/icmp-sub000/internal/state"
	"github.com/SaibSameer/icmp-sub000/internal/store"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

var tracer = otel.Tracer("internal/pipeline")

// ValidationError reports every missing required field of a request.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Request is one inbound message.
type Request struct {
	BusinessID     string `json:"business_id"`
	UserID         string `json:"user_id"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Result is the structured outcome of processing one message. Success is
// false for every failure except rate limiting, which propagates as a typed
// error instead.
type Result struct {
	Success        bool           `json:"success"`
	Response       string         `json:"response,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	StageID        string         `json:"stage_id,omitempty"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
	ErrorType      string         `json:"error_type,omitempty"`
	Extracted      map[string]any `json:"extracted,omitempty"`
	ProcessLogID   string         `json:"process_log_id,omitempty"`
}

// Conversations is the conversation persistence surface the pipeline needs.
type Conversations interface {
	Get(ctx context.Context, id string) (*store.Conversation, error)
	FindActive(ctx context.Context, businessID, userID string) (*store.Conversation, error)
	Create(ctx context.Context, businessID, userID, stageID string) (*store.Conversation, error)
}

// Stages reads the configured stage graph.
type Stages interface {
	GetByID(ctx context.Context, id string) (*store.Stage, error)
	InitialStage(ctx context.Context, businessID string) (*store.Stage, error)
	TransitionsFrom(ctx context.Context, stageID string) ([]store.Transition, error)
	ExtractionRules(ctx context.Context, stageID string) ([]extraction.Rule, error)
}

// Messages appends transcript entries.
type Messages interface {
	Append(ctx context.Context, conversationID, role, content string) (*store.Message, error)
}

// States is the cache-backed conversation state surface.
type States interface {
	GetStage(ctx context.Context, conversationID string) (string, error)
	SetStage(ctx context.Context, conversationID, stageID string) error
	ClearStage(ctx context.Context, conversationID string)
	GetState(ctx context.Context, conversationID string) (map[string]any, error)
	SetState(ctx context.Context, conversationID string, state map[string]any) error
	Template(ctx context.Context, id string) (string, error)
	CheckStopped(ctx context.Context, conversationID, userID string) (state.StopStatus, error)
	StopAI(ctx context.Context, scope store.ControlScope, window time.Duration) (*store.ControlSetting, error)
	ResumeAI(ctx context.Context, scope store.ControlScope) error
}

// Generator runs model calls.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error)
}

// Extractor applies rule-based extraction.
type Extractor interface {
	Extract(ctx context.Context, message string, rules []extraction.Rule) (map[string]any, error)
}

// ProcessLogs tracks pipeline invocations.
type ProcessLogs interface {
	Start(ctx context.Context, businessID, conversationID string) (string, error)
	Finish(ctx context.Context, id, status, errorMessage string) error
	SetConversation(ctx context.Context, id, conversationID string) error
}

// Processor composes state, extraction, stage evaluation and generation for
// each inbound message. Invocations are independent; concurrent calls share
// only the injected collaborators.
type Processor struct {
	conversations Conversations
	stages        Stages
	messages      Messages
	states        States
	generator     Generator
	extractor     Extractor
	logs          ProcessLogs
	stopWindow    time.Duration
	logger        *logging.Logger
	metrics       *metrics.PipelineMetrics
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithStopWindow overrides the default AI-stop window.
func WithStopWindow(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.stopWindow = d
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.PipelineMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor builds the pipeline.
func NewProcessor(conversations Conversations, stages Stages, messages Messages, states States, generator Generator, extractor Extractor, logs ProcessLogs, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if conversations == nil || stages == nil || messages == nil || states == nil || generator == nil || extractor == nil || logs == nil {
		panic("pipeline: all collaborators are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		conversations: conversations,
		stages:        stages,
		messages:      messages,
		states:        states,
		generator:     generator,
		extractor:     extractor,
		logs:          logs,
		stopWindow:    time.Hour,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one inbound message end to end. Every failure is folded
// into the structured result; only the rate-limit error returns as a Go
// error so the transport layer can map it to a retryable status.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Process",
		trace.WithAttributes(
			attribute.String("business.id", req.BusinessID),
			attribute.String("user.id", req.UserID)))
	defer span.End()

	started := time.Now()

	if missing := missingFields(req); len(missing) > 0 {
		err := &ValidationError{Missing: missing}
		p.metrics.ObserveProcessed("validation_error", time.Since(started).Seconds())
		return &Result{
			Success:   false,
			Status:    store.ProcessError,
			Error:     err.Error(),
			ErrorType: "validation",
		}, nil
	}

	logID, err := p.logs.Start(ctx, req.BusinessID, req.ConversationID)
	if err != nil {
		// Processing continues; traceability is degraded, not the reply.
		p.logger.Warn("process log creation failed", "business_id", req.BusinessID, "error", err)
	}

	result, procErr := p.run(ctx, req, logID)
	result.ProcessLogID = logID

	p.metrics.ObserveProcessed(result.Status, time.Since(started).Seconds())
	if procErr != nil {
		span.RecordError(procErr)
	}
	return result, procErr
}

// run executes the pipeline phases. The returned error is non-nil only for
// rate limiting.
func (p *Processor) run(ctx context.Context, req Request, logID string) (*Result, error) {
	// The stop flag is checked before any model call is made.
	stopStatus, err := p.states.CheckStopped(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return p.fail(ctx, logID, "state", err), nil
	}
	if stopStatus.Stopped {
		p.finishLog(ctx, logID, store.ProcessAIStopped, "")
		return &Result{
			Success:        false,
			Status:         store.ProcessAIStopped,
			ConversationID: req.ConversationID,
		}, nil
	}

	conv, currentStage, err := p.resolveConversation(ctx, req)
	if err != nil {
		return p.fail(ctx, logID, "conversation", err), nil
	}
	if req.ConversationID == "" {
		// The first check could not see a stop scoped to the conversation
		// the request omitted; re-check now that it is resolved.
		stopStatus, err := p.states.CheckStopped(ctx, conv.ID, "")
		if err != nil {
			return p.fail(ctx, logID, "state", err), nil
		}
		if stopStatus.Stopped {
			p.finishLog(ctx, logID, store.ProcessAIStopped, "")
			return &Result{
				Success:        false,
				Status:         store.ProcessAIStopped,
				ConversationID: conv.ID,
			}, nil
		}
	}
	if logID != "" && req.ConversationID == "" {
		if err := p.logs.SetConversation(ctx, logID, conv.ID); err != nil {
			p.logger.Warn("process log conversation backfill failed", "process_log_id", logID, "error", err)
		}
	}

	if _, err := p.messages.Append(ctx, conv.ID, "user", req.Content); err != nil {
		return p.fail(ctx, logID, "database", err), nil
	}

	extracted, err := p.runExtraction(ctx, req, conv, currentStage)
	if err != nil {
		var rateErr *llm.RateLimitError
		if errors.As(err, &rateErr) {
			return p.rateLimited(ctx, logID, conv.ID, err), err
		}
		return p.fail(ctx, logID, "extraction", err), nil
	}

	contextState, err := p.mergeContext(ctx, conv.ID, extracted)
	if err != nil {
		return p.fail(ctx, logID, "state", err), nil
	}

	reply, err := p.generator.Generate(ctx, llm.GenerateRequest{
		InputText:      req.Content,
		CallType:       llm.CallResponse,
		ConversationID: conv.ID,
		BusinessID:     conv.BusinessID,
	})
	if err != nil {
		var rateErr *llm.RateLimitError
		if errors.As(err, &rateErr) {
			return p.rateLimited(ctx, logID, conv.ID, err), err
		}
		return p.fail(ctx, logID, "llm", err), nil
	}
	for _, warning := range reply.Warnings {
		p.logger.Warn("generation degraded", "conversation_id", conv.ID, "warning", warning)
	}

	if _, err := p.messages.Append(ctx, conv.ID, "assistant", reply.Text); err != nil {
		return p.fail(ctx, logID, "database", err), nil
	}

	stageID, err := p.evaluateTransition(ctx, conv, currentStage, contextState)
	if err != nil {
		return p.fail(ctx, logID, "stage", err), nil
	}

	p.finishLog(ctx, logID, store.ProcessCompleted, "")
	return &Result{
		Success:        true,
		Status:         store.ProcessCompleted,
		Response:       reply.Text,
		ConversationID: conv.ID,
		StageID:        stageID,
		Extracted:      extracted,
	}, nil
}

func (p *Processor) resolveConversation(ctx context.Context, req Request) (*store.Conversation, *store.Stage, error) {
	var conv *store.Conversation
	var err error

	if req.ConversationID != "" {
		conv, err = p.conversations.Get(ctx, req.ConversationID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		conv, err = p.conversations.FindActive(ctx, req.BusinessID, req.UserID)
		if err != nil && !errors.Is(err, store.ErrConversationNotFound) {
			return nil, nil, err
		}
	}

	if conv == nil {
		initial, err := p.stages.InitialStage(ctx, req.BusinessID)
		if err != nil {
			return nil, nil, err
		}
		conv, err = p.conversations.Create(ctx, req.BusinessID, req.UserID, initial.ID)
		if err != nil {
			return nil, nil, err
		}
		return conv, initial, nil
	}

	// Existing conversations resolve their stage through the state store so
	// the cache serves repeat reads.
	stageID, err := p.states.GetStage(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	if stageID == "" {
		initial, err := p.stages.InitialStage(ctx, conv.BusinessID)
		if err != nil {
			return nil, nil, err
		}
		if err := p.states.SetStage(ctx, conv.ID, initial.ID); err != nil {
			return nil, nil, err
		}
		conv.CurrentStageID = initial.ID
		return conv, initial, nil
	}
	conv.CurrentStageID = stageID

	current, err := p.stages.GetByID(ctx, stageID)
	if err != nil {
		return nil, nil, err
	}
	return conv, current, nil
}

// mergeContext folds newly extracted fields into the conversation's context
// and returns the merged map for transition evaluation. The confidence side
// channel stays on the per-message result.
func (p *Processor) mergeContext(ctx context.Context, conversationID string, extracted map[string]any) (map[string]any, error) {
	current, err := p.states.GetState(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = make(map[string]any, len(extracted))
	}
	if len(extracted) == 0 {
		return current, nil
	}
	for field, value := range extracted {
		if field == extraction.ConfidenceScoresKey {
			continue
		}
		current[field] = value
	}
	if err := p.states.SetState(ctx, conversationID, current); err != nil {
		return nil, err
	}
	return current, nil
}

// runExtraction merges rule-based extraction with LLM-backed extraction when
// the stage carries an extraction template.
func (p *Processor) runExtraction(ctx context.Context, req Request, conv *store.Conversation, currentStage *store.Stage) (map[string]any, error) {
	rules, err := p.stages.ExtractionRules(ctx, currentStage.ID)
	if err != nil {
		return nil, err
	}

	var strategies []extraction.StrategyResult

	if len(rules) > 0 {
		ruleFields, err := p.extractor.Extract(ctx, req.Content, rules)
		if err != nil {
			return nil, err
		}
		if len(ruleFields) > 0 {
			strategies = append(strategies, extraction.StrategyResult{
				Strategy: extraction.StrategyRule,
				Fields:   ruleFields,
			})
		}
	}

	if currentStage.ExtractionTemplateID != "" {
		llmFields, err := p.llmExtraction(ctx, req, conv, currentStage.ExtractionTemplateID)
		if err != nil {
			return nil, err
		}
		if len(llmFields) > 0 {
			strategies = append(strategies, extraction.StrategyResult{
				Strategy: extraction.StrategyLLM,
				Fields:   llmFields,
			})
		}
	}

	if len(strategies) == 0 {
		return map[string]any{}, nil
	}
	return extraction.Combine(strategies, nil), nil
}

func (p *Processor) llmExtraction(ctx context.Context, req Request, conv *store.Conversation, templateID string) (map[string]any, error) {
	systemPrompt, err := p.states.Template(ctx, templateID)
	if err != nil {
		return nil, err
	}

	result, err := p.generator.Generate(ctx, llm.GenerateRequest{
		InputText:      req.Content,
		SystemPrompt:   systemPrompt,
		CallType:       llm.CallExtraction,
		ConversationID: conv.ID,
		BusinessID:     conv.BusinessID,
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if jsonErr := json.Unmarshal([]byte(result.Text), &fields); jsonErr != nil {
		// Non-JSON completions contribute nothing rather than failing the message.
		p.logger.Warn("llm extraction returned non-json output",
			"conversation_id", conv.ID, "call_id", result.CallID)
		return nil, nil
	}
	return fields, nil
}

func (p *Processor) evaluateTransition(ctx context.Context, conv *store.Conversation, currentStage *store.Stage, extracted map[string]any) (string, error) {
	transitions, err := p.stages.TransitionsFrom(ctx, currentStage.ID)
	if err != nil {
		return "", err
	}

	selected := stage.Select(transitions, extracted)
	if selected == nil || selected.ToStageID == currentStage.ID {
		return currentStage.ID, nil
	}

	target, err := p.stages.GetByID(ctx, selected.ToStageID)
	if err != nil {
		return "", err
	}
	if err := stage.ValidateTransition(currentStage.Type, target.Type, selected.Condition); err != nil {
		return "", err
	}
	if err := p.states.SetStage(ctx, conv.ID, target.ID); err != nil {
		return "", err
	}
	if target.Type == store.StageFinal {
		// A finished conversation takes no more messages; drop its cache entries.
		p.states.ClearStage(ctx, conv.ID)
	}
	return target.ID, nil
}

// StopAIResponses suppresses generation for the scope for the configured
// window. Stopping an already stopped scope refreshes the window.
func (p *Processor) StopAIResponses(ctx context.Context, scope store.ControlScope) (*store.ControlSetting, error) {
	return p.states.StopAI(ctx, scope, p.stopWindow)
}

// ResumeAIResponses re-enables generation for the scope.
func (p *Processor) ResumeAIResponses(ctx context.Context, scope store.ControlScope) error {
	return p.states.ResumeAI(ctx, scope)
}

// GetStopStatus reports the stop state, conversation scope first.
func (p *Processor) GetStopStatus(ctx context.Context, conversationID, userID string) (state.StopStatus, error) {
	return p.states.CheckStopped(ctx, conversationID, userID)
}

func (p *Processor) fail(ctx context.Context, logID, errType string, err error) *Result {
	p.logger.Error("message processing failed", "error_type", errType, "error", err)
	p.finishLog(ctx, logID, store.ProcessError, err.Error())
	return &Result{
		Success:   false,
		Status:    store.ProcessError,
		Error:     err.Error(),
		ErrorType: errType,
	}
}

func (p *Processor) rateLimited(ctx context.Context, logID, conversationID string, err error) *Result {
	p.finishLog(ctx, logID, store.ProcessError, err.Error())
	return &Result{
		Success:        false,
		Status:         store.ProcessError,
		Error:          err.Error(),
		ErrorType:      "rate_limit",
		ConversationID: conversationID,
	}
}

func (p *Processor) finishLog(ctx context.Context, logID, status, errorMessage string) {
	if logID == "" {
		return
	}
	if err := p.logs.Finish(ctx, logID, status, errorMessage); err != nil {
		p.logger.Warn("process log update failed", "process_log_id", logID, "error", err)
	}
}

func missingFields(req Request) []string {
	var missing []string
	if strings.TrimSpace(req.BusinessID) == "" {
		missing = append(missing, "business_id")
	}
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(req.Content) == "" {
		missing = append(missing, "content")
	}
	return missing
}
