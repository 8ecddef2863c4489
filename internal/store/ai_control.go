package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/SaibSameer/icmp-sub000/internal/db"
)

// AIControlRepository persists AI-stop windows. One row exists per scope;
// stopping again refreshes the existing row instead of stacking windows.
type AIControlRepository struct {
	manager *db.Manager
}

func NewAIControlRepository(manager *db.Manager) *AIControlRepository {
	if manager == nil {
		panic("store: connection manager required")
	}
	return &AIControlRepository{manager: manager}
}

// Stop opens or refreshes a stop window for the scope. Calling it on an
// already stopped scope extends the window rather than failing.
func (r *AIControlRepository) Stop(ctx context.Context, scope ControlScope, stopTime, expirationTime time.Time) (*ControlSetting, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	conflictColumn := "conversation_id"
	if scope.UserID != "" {
		conflictColumn = "user_id"
	}

	setting := &ControlSetting{
		ID:             uuid.NewString(),
		ConversationID: scope.ConversationID,
		UserID:         scope.UserID,
		IsStopped:      true,
		StopTime:       &stopTime,
		ExpirationTime: &expirationTime,
	}
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO ai_control_settings
				(id, conversation_id, user_id, is_stopped, stop_time, expiration_time)
			VALUES ($1, $2, $3, true, $4, $5)
			ON CONFLICT (%s) DO UPDATE
			SET is_stopped = true, stop_time = $4, expiration_time = $5, updated_at = now()
			RETURNING id, updated_at
		`, conflictColumn), setting.ID, nilIfEmpty(scope.ConversationID), nilIfEmpty(scope.UserID),
			stopTime, expirationTime)
		if err := row.Scan(&setting.ID, &setting.UpdatedAt); err != nil {
			return fmt.Errorf("store: ai stop upsert failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return setting, nil
}

// Resume clears the stop flag for the scope. Resuming a scope with no
// setting is a no-op.
func (r *AIControlRepository) Resume(ctx context.Context, scope ControlScope) error {
	if err := validateScope(scope); err != nil {
		return err
	}
	return r.manager.WithConn(ctx, func(conn db.Conn) error {
		_, err := conn.Exec(ctx, `
			UPDATE ai_control_settings
			SET is_stopped = false, stop_time = NULL, expiration_time = NULL, updated_at = now()
			WHERE (conversation_id = $1 AND $1 IS NOT NULL)
			   OR (user_id = $2 AND $2 IS NOT NULL)
		`, nilIfEmpty(scope.ConversationID), nilIfEmpty(scope.UserID))
		if err != nil {
			return fmt.Errorf("store: ai resume failed: %w", err)
		}
		return nil
	})
}

// Get loads the setting for a scope, or nil when none exists.
func (r *AIControlRepository) Get(ctx context.Context, scope ControlScope) (*ControlSetting, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	var setting ControlSetting
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, COALESCE(conversation_id::text, ''), COALESCE(user_id::text, ''),
			       is_stopped, stop_time, expiration_time, updated_at
			FROM ai_control_settings
			WHERE (conversation_id = $1 AND $1 IS NOT NULL)
			   OR (user_id = $2 AND $2 IS NOT NULL)
		`, nilIfEmpty(scope.ConversationID), nilIfEmpty(scope.UserID))

		var stopTime, expirationTime pgtype.Timestamptz
		err := row.Scan(&setting.ID, &setting.ConversationID, &setting.UserID,
			&setting.IsStopped, &stopTime, &expirationTime, &setting.UpdatedAt)
		if err != nil {
			return err
		}
		if stopTime.Valid {
			t := stopTime.Time
			setting.StopTime = &t
		}
		if expirationTime.Valid {
			t := expirationTime.Time
			setting.ExpirationTime = &t
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: ai control select failed: %w", err)
	}
	return &setting, nil
}

func validateScope(scope ControlScope) error {
	if (scope.ConversationID == "") == (scope.UserID == "") {
		return fmt.Errorf("store: control scope needs exactly one of conversation id or user id")
	}
	return nil
}
