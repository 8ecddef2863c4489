package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/SaibSameer/icmp-sub000/internal/state"
	"github.com/SaibSameer/icmp-sub000/internal/store"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

// AIController is the stop/resume surface the handler needs.
type AIController interface {
	StopAIResponses(ctx context.Context, scope store.ControlScope) (*store.ControlSetting, error)
	ResumeAIResponses(ctx context.Context, scope store.ControlScope) error
	GetStopStatus(ctx context.Context, conversationID, userID string) (state.StopStatus, error)
}

// AIControlHandler exposes AI-stop management over HTTP.
type AIControlHandler struct {
	controller AIController
	logger     *logging.Logger
}

func NewAIControlHandler(controller AIController, logger *logging.Logger) *AIControlHandler {
	if controller == nil {
		panic("handlers: ai controller required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AIControlHandler{controller: controller, logger: logger}
}

type controlRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
}

func (cr controlRequest) scope() (store.ControlScope, bool) {
	scope := store.ControlScope{ConversationID: cr.ConversationID, UserID: cr.UserID}
	valid := (cr.ConversationID == "") != (cr.UserID == "")
	return scope, valid
}

// Stop handles POST /api/ai-control/stop.
func (h *AIControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	scope, ok := req.scope()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exactly one of conversation_id or user_id is required"})
		return
	}

	setting, err := h.controller.StopAIResponses(r.Context(), scope)
	if err != nil {
		h.logger.Error("ai stop failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_stopped":      setting.IsStopped,
		"stop_time":       setting.StopTime,
		"expiration_time": setting.ExpirationTime,
	})
}

// Resume handles POST /api/ai-control/resume.
func (h *AIControlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	scope, ok := req.scope()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exactly one of conversation_id or user_id is required"})
		return
	}

	if err := h.controller.ResumeAIResponses(r.Context(), scope); err != nil {
		h.logger.Error("ai resume failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"is_stopped": false})
}

// Status handles GET /api/ai-control/status.
func (h *AIControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	userID := r.URL.Query().Get("user_id")
	if conversationID == "" && userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation_id or user_id is required"})
		return
	}

	status, err := h.controller.GetStopStatus(r.Context(), conversationID, userID)
	if err != nil {
		h.logger.Error("ai stop status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_stopped":             status.Stopped,
		"scope":                  status.Scope,
		"time_remaining_seconds": int(status.TimeRemaining / time.Second),
	})
}
