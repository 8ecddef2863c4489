package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SaibSameer/icmp-sub000/internal/llm"
	"github.com/SaibSameer/icmp-sub000/internal/pipeline"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

// MessageProcessor is the pipeline surface the handler needs.
type MessageProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// MessageHandler accepts inbound messages and returns the pipeline's
// structured result.
type MessageHandler struct {
	processor MessageProcessor
	logger    *logging.Logger
}

func NewMessageHandler(processor MessageProcessor, logger *logging.Logger) *MessageHandler {
	if processor == nil {
		panic("handlers: message processor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MessageHandler{processor: processor, logger: logger}
}

// Process handles POST /api/messages.
func (h *MessageHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	result, err := h.processor.Process(r.Context(), req)
	if err != nil {
		var rateErr *llm.RateLimitError
		if errors.As(err, &rateErr) {
			w.Header().Set("Retry-After", formatRetryAfter(rateErr.RetryAfter))
			writeJSON(w, http.StatusTooManyRequests, result)
			return
		}
		h.logger.Error("message processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := http.StatusOK
	if !result.Success {
		switch result.ErrorType {
		case "validation":
			status = http.StatusBadRequest
		case "ai_stopped":
			status = http.StatusOK
		default:
			if result.Status == "ai_stopped" {
				status = http.StatusOK
			} else {
				status = http.StatusUnprocessableEntity
			}
		}
	}
	writeJSON(w, status, result)
}
