package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaibSameer/icmp-sub000/internal/llm"
	"github.com/SaibSameer/icmp-sub000/internal/pipeline"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

type stubProcessor struct {
	result *pipeline.Result
	err    error
	last   pipeline.Request
}

func (s *stubProcessor) Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	s.last = req
	return s.result, s.err
}

func TestProcessMessageSuccess(t *testing.T) {
	proc := &stubProcessor{result: &pipeline.Result{
		Success:        true,
		Status:         "completed",
		Response:       "hello!",
		ConversationID: "conv-1",
		StageID:        "stage-1",
	}}
	handler := NewMessageHandler(proc, logging.Default())

	body := `{"business_id":"biz-1","user_id":"user-1","content":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Process(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "biz-1", proc.last.BusinessID)

	var resp pipeline.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello!", resp.Response)
}

func TestProcessMessageInvalidJSON(t *testing.T) {
	handler := NewMessageHandler(&stubProcessor{}, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	handler.Process(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessMessageValidationFailure(t *testing.T) {
	proc := &stubProcessor{result: &pipeline.Result{
		Success:   false,
		Status:    "error",
		Error:     "pipeline: missing required fields: content",
		ErrorType: "validation",
	}}
	handler := NewMessageHandler(proc, logging.Default())

	body := `{"business_id":"biz-1","user_id":"user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Process(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessMessageRateLimitMapsTo429(t *testing.T) {
	proc := &stubProcessor{
		result: &pipeline.Result{Success: false, Status: "error", ErrorType: "rate_limit"},
		err:    &llm.RateLimitError{BusinessID: "biz-1", Limit: 60, RetryAfter: 30 * time.Second},
	}
	handler := NewMessageHandler(proc, logging.Default())

	body := `{"business_id":"biz-1","user_id":"user-1","content":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Process(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestProcessMessageAIStoppedIsOK(t *testing.T) {
	proc := &stubProcessor{result: &pipeline.Result{
		Success: false,
		Status:  "ai_stopped",
	}}
	handler := NewMessageHandler(proc, logging.Default())

	body := `{"business_id":"biz-1","user_id":"user-1","content":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Process(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp pipeline.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ai_stopped", resp.Status)
}

func TestProcessMessageGenericFailure(t *testing.T) {
	proc := &stubProcessor{result: &pipeline.Result{
		Success:      false,
		Status:       "error",
		Error:        "extraction failed",
		ErrorType:    "extraction",
		ProcessLogID: "log-1",
	}}
	handler := NewMessageHandler(proc, logging.Default())

	body := `{"business_id":"biz-1","user_id":"user-1","content":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Process(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp pipeline.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "log-1", resp.ProcessLogID)
}
