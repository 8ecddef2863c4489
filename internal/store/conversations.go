package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/SaibSameer/icmp-sub000/internal/db"
)

// ConversationRepository persists conversations and their free-form context.
type ConversationRepository struct {
	manager *db.Manager
}

// NewConversationRepository builds a Postgres-backed conversation repo.
func NewConversationRepository(manager *db.Manager) *ConversationRepository {
	if manager == nil {
		panic("store: connection manager required")
	}
	return &ConversationRepository{manager: manager}
}

// Get loads a conversation by id.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, business_id, user_id, current_stage_id, created_at, last_updated
			FROM conversations
			WHERE id = $1
		`, id)
		return scanConversation(row, &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindActive returns the most recently updated conversation for the
// business/user pair, or ErrConversationNotFound.
func (r *ConversationRepository) FindActive(ctx context.Context, businessID, userID string) (*Conversation, error) {
	var conv Conversation
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, business_id, user_id, current_stage_id, created_at, last_updated
			FROM conversations
			WHERE business_id = $1 AND user_id = $2
			ORDER BY last_updated DESC
			LIMIT 1
		`, businessID, userID)
		return scanConversation(row, &conv)
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Create inserts a new conversation pinned to the given stage.
func (r *ConversationRepository) Create(ctx context.Context, businessID, userID, stageID string) (*Conversation, error) {
	id := uuid.NewString()
	var createdAt time.Time
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO conversations (id, business_id, user_id, current_stage_id)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, id, businessID, userID, nilIfEmpty(stageID))
		if err := row.Scan(&createdAt); err != nil {
			return fmt.Errorf("store: conversation insert failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Conversation{
		ID:             id,
		BusinessID:     businessID,
		UserID:         userID,
		CurrentStageID: stageID,
		CreatedAt:      createdAt,
		LastUpdated:    createdAt,
	}, nil
}

// UpdateStage moves the conversation to a new stage.
func (r *ConversationRepository) UpdateStage(ctx context.Context, conversationID, stageID string) error {
	return r.manager.WithConn(ctx, func(conn db.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE conversations
			SET current_stage_id = $2, last_updated = now()
			WHERE id = $1
		`, conversationID, stageID)
		if err != nil {
			return fmt.Errorf("store: stage update failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
}

// Context loads the conversation's free-form state map.
func (r *ConversationRepository) Context(ctx context.Context, conversationID string) (map[string]any, error) {
	var raw []byte
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT context FROM conversations WHERE id = $1
		`, conversationID)
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrConversationNotFound
			}
			return fmt.Errorf("store: context select failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	state := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("store: context decode failed: %w", err)
		}
	}
	return state, nil
}

// SetContext replaces the conversation's free-form state map.
func (r *ConversationRepository) SetContext(ctx context.Context, conversationID string, state map[string]any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: context encode failed: %w", err)
	}
	return r.manager.WithConn(ctx, func(conn db.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE conversations
			SET context = $2, last_updated = now()
			WHERE id = $1
		`, conversationID, raw)
		if err != nil {
			return fmt.Errorf("store: context update failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
}

// BusinessFor resolves the business owning a conversation.
func (r *ConversationRepository) BusinessFor(ctx context.Context, conversationID string) (string, error) {
	var businessID string
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT business_id FROM conversations WHERE id = $1
		`, conversationID)
		if err := row.Scan(&businessID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrConversationNotFound
			}
			return fmt.Errorf("store: business lookup failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return businessID, nil
}

func scanConversation(row pgx.Row, conv *Conversation) error {
	var stageID pgtype.Text
	if err := row.Scan(&conv.ID, &conv.BusinessID, &conv.UserID, &stageID, &conv.CreatedAt, &conv.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("store: conversation select failed: %w", err)
	}
	if stageID.Valid {
		conv.CurrentStageID = stageID.String
	}
	return nil
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
