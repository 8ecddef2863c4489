package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SaibSameer/icmp-sub000/internal/store"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

var tracer = otel.Tracer("internal/state")

// Error wraps a state operation failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConversationDurable is the durable backend for stage and context state.
type ConversationDurable interface {
	Get(ctx context.Context, id string) (*store.Conversation, error)
	UpdateStage(ctx context.Context, conversationID, stageID string) error
	Context(ctx context.Context, conversationID string) (map[string]any, error)
	SetContext(ctx context.Context, conversationID string, state map[string]any) error
}

// TemplateDurable resolves template content when the cache misses.
type TemplateDurable interface {
	Content(ctx context.Context, id string) (string, error)
}

// ControlDurable is the durable backend for AI-stop windows.
type ControlDurable interface {
	Stop(ctx context.Context, scope store.ControlScope, stopTime, expirationTime time.Time) (*store.ControlSetting, error)
	Resume(ctx context.Context, scope store.ControlScope) error
	Get(ctx context.Context, scope store.ControlScope) (*store.ControlSetting, error)
}

// Options tunes cache TTLs.
type Options struct {
	StageTTL        time.Duration
	ConversationTTL time.Duration
	TemplateTTL     time.Duration
}

func (o *Options) fillDefaults() {
	if o.StageTTL <= 0 {
		o.StageTTL = time.Hour
	}
	if o.ConversationTTL <= 0 {
		o.ConversationTTL = 30 * time.Minute
	}
	if o.TemplateTTL <= 0 {
		o.TemplateTTL = time.Hour
	}
}

// Store layers a Redis cache over the durable repositories. Writes land in
// Postgres first; the cache is refreshed afterward and a cache failure never
// fails the write. Reads fall back to Postgres on any cache miss or error,
// so a flushed cache only costs latency.
type Store struct {
	redis         *redis.Client
	conversations ConversationDurable
	templates     TemplateDurable
	control       ControlDurable
	opts          Options
	logger        *logging.Logger
	now           func() time.Time
}

// NewStore builds the cache-backed state store.
func NewStore(rdb *redis.Client, conversations ConversationDurable, templates TemplateDurable, control ControlDurable, opts Options, logger *logging.Logger) *Store {
	if rdb == nil {
		panic("state: redis client required")
	}
	if conversations == nil || templates == nil || control == nil {
		panic("state: durable repositories required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	opts.fillDefaults()
	return &Store{
		redis:         rdb,
		conversations: conversations,
		templates:     templates,
		control:       control,
		opts:          opts,
		logger:        logger,
		now:           time.Now,
	}
}

func stageKey(conversationID string) string {
	return fmt.Sprintf("stage:%s", conversationID)
}

func convStateKey(conversationID string) string {
	return fmt.Sprintf("convstate:%s", conversationID)
}

func templateKey(id string) string {
	return fmt.Sprintf("template:%s", id)
}

func stopKey(scope store.ControlScope) string {
	if scope.ConversationID != "" {
		return fmt.Sprintf("aistop:conversation:%s", scope.ConversationID)
	}
	return fmt.Sprintf("aistop:user:%s", scope.UserID)
}

// GetStage returns the conversation's current stage id, serving from cache
// when possible.
func (s *Store) GetStage(ctx context.Context, conversationID string) (string, error) {
	ctx, span := tracer.Start(ctx, "state.GetStage",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	cached, err := s.redis.Get(ctx, stageKey(conversationID)).Result()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("stage cache read failed", "conversation_id", conversationID, "error", err)
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	s.cacheSet(ctx, stageKey(conversationID), conv.CurrentStageID, s.opts.StageTTL)
	return conv.CurrentStageID, nil
}

// SetStage moves the conversation to a stage, durably first.
func (s *Store) SetStage(ctx context.Context, conversationID, stageID string) error {
	ctx, span := tracer.Start(ctx, "state.SetStage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("stage.id", stageID)))
	defer span.End()

	if err := s.conversations.UpdateStage(ctx, conversationID, stageID); err != nil {
		span.RecordError(err)
		return err
	}
	s.cacheSet(ctx, stageKey(conversationID), stageID, s.opts.StageTTL)
	return nil
}

// ClearStage drops the cached stage entry. The durable row is untouched.
func (s *Store) ClearStage(ctx context.Context, conversationID string) {
	if err := s.redis.Del(ctx, stageKey(conversationID)).Err(); err != nil {
		s.logger.Warn("stage cache clear failed", "conversation_id", conversationID, "error", err)
	}
}

// GetState returns the conversation's free-form state map.
func (s *Store) GetState(ctx context.Context, conversationID string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "state.GetState",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	raw, err := s.redis.Get(ctx, convStateKey(conversationID)).Bytes()
	if err == nil {
		var cached map[string]any
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		// Corrupt entry; fall through to the durable copy.
		s.logger.Warn("conversation state cache corrupt", "conversation_id", conversationID)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("conversation state cache read failed", "conversation_id", conversationID, "error", err)
	}

	durable, err := s.conversations.Context(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if encoded, jsonErr := json.Marshal(durable); jsonErr == nil {
		s.cacheSet(ctx, convStateKey(conversationID), encoded, s.opts.ConversationTTL)
	}
	return durable, nil
}

// SetState replaces the conversation's free-form state map, durably first.
func (s *Store) SetState(ctx context.Context, conversationID string, state map[string]any) error {
	ctx, span := tracer.Start(ctx, "state.SetState",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	if err := s.conversations.SetContext(ctx, conversationID, state); err != nil {
		span.RecordError(err)
		return err
	}
	if encoded, err := json.Marshal(state); err == nil {
		s.cacheSet(ctx, convStateKey(conversationID), encoded, s.opts.ConversationTTL)
	}
	return nil
}

// Template resolves template content by id, serving from cache when possible.
func (s *Store) Template(ctx context.Context, id string) (string, error) {
	ctx, span := tracer.Start(ctx, "state.Template",
		trace.WithAttributes(attribute.String("template.id", id)))
	defer span.End()

	cached, err := s.redis.Get(ctx, templateKey(id)).Result()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("template cache read failed", "template_id", id, "error", err)
	}

	content, err := s.templates.Content(ctx, id)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	s.cacheSet(ctx, templateKey(id), content, s.opts.TemplateTTL)
	return content, nil
}

// StopStatus reports whether AI responses are stopped for a scope.
type StopStatus struct {
	Stopped       bool
	Scope         string
	TimeRemaining time.Duration
}

// StopAI opens a stop window for the scope. Stopping an already stopped
// scope refreshes the window.
func (s *Store) StopAI(ctx context.Context, scope store.ControlScope, window time.Duration) (*store.ControlSetting, error) {
	ctx, span := tracer.Start(ctx, "state.StopAI")
	defer span.End()

	now := s.now()
	setting, err := s.control.Stop(ctx, scope, now, now.Add(window))
	if err != nil {
		span.RecordError(err)
		return nil, &Error{Op: "stop", Err: err}
	}
	s.cacheSet(ctx, stopKey(scope), "1", window)
	return setting, nil
}

// ResumeAI clears the stop window for the scope.
func (s *Store) ResumeAI(ctx context.Context, scope store.ControlScope) error {
	ctx, span := tracer.Start(ctx, "state.ResumeAI")
	defer span.End()

	if err := s.control.Resume(ctx, scope); err != nil {
		span.RecordError(err)
		return &Error{Op: "resume", Err: err}
	}
	if err := s.redis.Del(ctx, stopKey(scope)).Err(); err != nil {
		s.logger.Warn("stop cache clear failed", "error", err)
	}
	return nil
}

// CheckStopped evaluates the conversation scope first, then the user scope.
// An expired window reads as not stopped.
func (s *Store) CheckStopped(ctx context.Context, conversationID, userID string) (StopStatus, error) {
	ctx, span := tracer.Start(ctx, "state.CheckStopped",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	if conversationID != "" {
		status, err := s.scopeStatus(ctx, store.ControlScope{ConversationID: conversationID}, "conversation")
		if err != nil {
			span.RecordError(err)
			return StopStatus{}, err
		}
		if status.Stopped {
			return status, nil
		}
	}
	if userID != "" {
		status, err := s.scopeStatus(ctx, store.ControlScope{UserID: userID}, "user")
		if err != nil {
			span.RecordError(err)
			return StopStatus{}, err
		}
		if status.Stopped {
			return status, nil
		}
	}
	return StopStatus{}, nil
}

func (s *Store) scopeStatus(ctx context.Context, scope store.ControlScope, label string) (StopStatus, error) {
	exists, err := s.redis.Exists(ctx, stopKey(scope)).Result()
	if err == nil && exists > 0 {
		ttl, ttlErr := s.redis.TTL(ctx, stopKey(scope)).Result()
		if ttlErr != nil || ttl < 0 {
			ttl = 0
		}
		return StopStatus{Stopped: true, Scope: label, TimeRemaining: ttl}, nil
	}
	if err != nil {
		s.logger.Warn("stop cache read failed", "scope", label, "error", err)
	}

	setting, err := s.control.Get(ctx, scope)
	if err != nil {
		return StopStatus{}, &Error{Op: "check", Err: err}
	}
	if setting == nil || !setting.IsStopped {
		return StopStatus{}, nil
	}
	if setting.ExpirationTime != nil {
		remaining := setting.ExpirationTime.Sub(s.now())
		if remaining <= 0 {
			return StopStatus{}, nil
		}
		s.cacheSet(ctx, stopKey(scope), "1", remaining)
		return StopStatus{Stopped: true, Scope: label, TimeRemaining: remaining}, nil
	}
	return StopStatus{Stopped: true, Scope: label}, nil
}

func (s *Store) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
