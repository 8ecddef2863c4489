package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/SaibSameer/icmp-sub000/internal/db"
)

// Process log statuses.
const (
	ProcessStarted   = "started"
	ProcessCompleted = "completed"
	ProcessError     = "error"
	ProcessAIStopped = "ai_stopped"
)

// ProcessLogRepository tracks pipeline invocations from start to terminal
// status.
type ProcessLogRepository struct {
	manager *db.Manager
}

func NewProcessLogRepository(manager *db.Manager) *ProcessLogRepository {
	if manager == nil {
		panic("store: connection manager required")
	}
	return &ProcessLogRepository{manager: manager}
}

// Start opens a log entry in the started status and returns its id.
func (r *ProcessLogRepository) Start(ctx context.Context, businessID, conversationID string) (string, error) {
	id := uuid.NewString()
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO process_logs (id, business_id, conversation_id, status)
			VALUES ($1, $2, $3, $4)
		`, id, nilIfEmpty(businessID), nilIfEmpty(conversationID), ProcessStarted)
		if err != nil {
			return fmt.Errorf("store: process log insert failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Finish moves a log entry to a terminal status, recording the failure
// message when there is one.
func (r *ProcessLogRepository) Finish(ctx context.Context, id, status, errorMessage string) error {
	return r.manager.WithConn(ctx, func(conn db.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE process_logs
			SET status = $2, error_message = $3, updated_at = now()
			WHERE id = $1
		`, id, status, errorMessage)
		if err != nil {
			return fmt.Errorf("store: process log update failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrProcessLogNotFound
		}
		return nil
	})
}

// SetConversation backfills the conversation id once resolution created or
// found the conversation.
func (r *ProcessLogRepository) SetConversation(ctx context.Context, id, conversationID string) error {
	return r.manager.WithConn(ctx, func(conn db.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE process_logs
			SET conversation_id = $2, updated_at = now()
			WHERE id = $1
		`, id, conversationID)
		if err != nil {
			return fmt.Errorf("store: process log update failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrProcessLogNotFound
		}
		return nil
	})
}
