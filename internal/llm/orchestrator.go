package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SaibSameer/icmp-sub000/internal/observability/metrics"
	"github.com/SaibSameer/icmp-sub000/internal/store"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

var tracer = otel.Tracer("internal/llm")

// apologyText is what response-type generation returns when the model call
// fails. Callers of that call type always get a string back.
const apologyText = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// HistorySource supplies prior conversation turns for response prompts.
type HistorySource interface {
	Recent(ctx context.Context, conversationID string, limit int) ([]store.Message, error)
}

// CallRecorder persists one row per physical model invocation.
type CallRecorder interface {
	Insert(ctx context.Context, call *store.LLMCall) error
}

// BusinessResolver maps a conversation to its owning business for call
// attribution.
type BusinessResolver interface {
	BusinessFor(ctx context.Context, conversationID string) (string, error)
}

// StageSource supplies the business's stage vocabulary for intent prompts
// when the caller does not pass one.
type StageSource interface {
	StageNames(ctx context.Context, businessID string) ([]string, error)
}

// GenerateRequest describes one logical generation.
type GenerateRequest struct {
	InputText       string
	SystemPrompt    string
	CallType        CallType
	ConversationID  string
	BusinessID      string
	AvailableStages []string
}

// GenerateResult carries the completion plus call metadata. Warnings report
// degradations (missed call logging, business resolution failure) that did
// not fail the generation.
type GenerateResult struct {
	Text     string
	CallID   string
	Usage    Usage
	Warnings []string
}

// Orchestrator builds prompts per call type, enforces per-business rate
// limits, invokes the model, post-processes the completion, and records the
// call.
type Orchestrator struct {
	client       Client
	limiter      *RateLimiter
	history      HistorySource
	calls        CallRecorder
	businesses   BusinessResolver
	stages       StageSource
	model        string
	maxTokens    int32
	historyLimit int
	logger       *logging.Logger
	metrics      *metrics.PipelineMetrics
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithHistoryLimit bounds how many prior turns feed a response prompt.
func WithHistoryLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.PipelineMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithStageSource wires a fallback stage vocabulary for intent calls.
func WithStageSource(s StageSource) OrchestratorOption {
	return func(o *Orchestrator) {
		o.stages = s
	}
}

// NewOrchestrator builds the orchestrator. history, calls and businesses may
// be nil when the corresponding concern is not wired (tests, one-off tools).
func NewOrchestrator(client Client, limiter *RateLimiter, history HistorySource, calls CallRecorder, businesses BusinessResolver, model string, maxTokens int32, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	if limiter == nil {
		panic("llm: rate limiter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		client:       client,
		limiter:      limiter,
		history:      history,
		calls:        calls,
		businesses:   businesses,
		model:        model,
		maxTokens:    maxTokens,
		historyLimit: 10,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate runs one model call for the given call type. Rate-limit errors
// propagate typed; for the response call type every other failure degrades
// to an apologetic reply instead of an error.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "llm.Generate",
		trace.WithAttributes(
			attribute.String("llm.call_type", string(req.CallType)),
			attribute.String("business.id", req.BusinessID)))
	defer span.End()

	result := &GenerateResult{}

	businessID := req.BusinessID
	if businessID == "" && req.ConversationID != "" && o.businesses != nil {
		resolved, err := o.businesses.BusinessFor(ctx, req.ConversationID)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("business resolution failed: %v", err))
			o.logger.Warn("business resolution failed, call will not be persisted",
				"conversation_id", req.ConversationID, "error", err)
		} else {
			businessID = resolved
		}
	}

	if err := o.limiter.Reserve(businessID); err != nil {
		o.metrics.ObserveRateLimited()
		span.RecordError(err)
		return nil, err
	}

	if req.CallType == CallIntent && len(req.AvailableStages) == 0 && o.stages != nil && businessID != "" {
		names, err := o.stages.StageNames(ctx, businessID)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("stage lookup failed: %v", err))
			o.logger.Warn("stage vocabulary lookup failed, intent runs unconstrained",
				"business_id", businessID, "error", err)
		} else {
			req.AvailableStages = names
		}
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt(req.CallType)
	}

	messages, err := o.buildMessages(ctx, req)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("history fetch failed: %v", err))
		// Degrade to a history-less prompt rather than failing the reply.
		messages = []Message{{Role: RoleUser, Content: req.InputText}}
	}

	started := time.Now()
	resp, callErr := o.client.Complete(ctx, Request{
		Model:       o.model,
		System:      []string{systemPrompt},
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: temperatureFor(req.CallType),
	})
	elapsed := time.Since(started).Seconds()

	status := "ok"
	if callErr != nil {
		status = "error"
	}
	o.metrics.ObserveLLMCall(string(req.CallType), status, elapsed)
	o.metrics.ObserveTokens(string(req.CallType), int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	o.limiter.RecordUsage(businessID, int(resp.Usage.TotalTokens))

	result.CallID = o.recordCall(ctx, businessID, req, messages[len(messages)-1].Content, systemPrompt, resp, result)
	result.Usage = resp.Usage

	if callErr != nil {
		span.RecordError(callErr)
		if req.CallType == CallResponse {
			o.logger.Error("response generation failed, returning apology",
				"conversation_id", req.ConversationID, "error", callErr)
			result.Text = apologyText
			return result, nil
		}
		return nil, &ServiceError{CallType: req.CallType, Err: callErr}
	}

	result.Text = resp.Text
	if req.CallType == CallIntent {
		result.Text = cleanIntentReply(resp.Text, req.AvailableStages)
	}
	return result, nil
}

func (o *Orchestrator) buildMessages(ctx context.Context, req GenerateRequest) ([]Message, error) {
	if req.CallType == CallIntent {
		return []Message{{Role: RoleUser, Content: buildIntentTurn(req.InputText, req.AvailableStages)}}, nil
	}

	var messages []Message
	if req.CallType == CallResponse && req.ConversationID != "" && o.history != nil {
		prior, err := o.history.Recent(ctx, req.ConversationID, o.historyLimit)
		if err != nil {
			return nil, err
		}
		for _, msg := range prior {
			role := RoleUser
			if msg.Role == "assistant" {
				role = RoleAssistant
			}
			messages = append(messages, Message{Role: role, Content: msg.Content})
		}
	}
	return append(messages, Message{Role: RoleUser, Content: req.InputText}), nil
}

// recordCall persists the invocation with a fresh id. A persistence failure
// is logged and reported as a warning, never as a generation failure.
func (o *Orchestrator) recordCall(ctx context.Context, businessID string, req GenerateRequest, inputText, systemPrompt string, resp Response, result *GenerateResult) string {
	callID := uuid.NewString()
	if o.calls == nil {
		return callID
	}
	if businessID == "" && req.ConversationID != "" {
		// Unresolved business; skip persistence, the warning is already set.
		return callID
	}
	err := o.calls.Insert(ctx, &store.LLMCall{
		ID:             callID,
		BusinessID:     businessID,
		ConversationID: req.ConversationID,
		CallType:       string(req.CallType),
		InputText:      inputText,
		SystemPrompt:   systemPrompt,
		ResponseText:   resp.Text,
		InputTokens:    int(resp.Usage.InputTokens),
		OutputTokens:   int(resp.Usage.OutputTokens),
	})
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("call logging failed: %v", err))
		o.logger.Warn("llm call logging failed", "call_id", callID, "error", err)
	}
	return callID
}
