package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SaibSameer/icmp-sub000/internal/db"
)

// MessageRepository persists the conversation transcript.
type MessageRepository struct {
	manager *db.Manager
}

func NewMessageRepository(manager *db.Manager) *MessageRepository {
	if manager == nil {
		panic("store: connection manager required")
	}
	return &MessageRepository{manager: manager}
}

// Append records a transcript entry and bumps the conversation's
// last_updated so FindActive keeps picking the live conversation.
func (r *MessageRepository) Append(ctx context.Context, conversationID, role, content string) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		var createdAt time.Time
		row := conn.QueryRow(ctx, `
			INSERT INTO messages (id, conversation_id, role, content)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, msg.ID, msg.ConversationID, msg.Role, msg.Content)
		if err := row.Scan(&createdAt); err != nil {
			return fmt.Errorf("store: message insert failed: %w", err)
		}
		msg.CreatedAt = createdAt

		if _, err := conn.Exec(ctx, `
			UPDATE conversations SET last_updated = now() WHERE id = $1
		`, conversationID); err != nil {
			return fmt.Errorf("store: conversation touch failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Recent returns the newest messages of a conversation in chronological
// order, ready to feed a model prompt.
func (r *MessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	var messages []Message
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, conversation_id, role, content, created_at
			FROM (
				SELECT id, conversation_id, role, content, created_at
				FROM messages
				WHERE conversation_id = $1
				ORDER BY created_at DESC
				LIMIT $2
			) recent
			ORDER BY created_at ASC
		`, conversationID, limit)
		if err != nil {
			return fmt.Errorf("store: messages select failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var m Message
			if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
				return fmt.Errorf("store: message scan failed: %w", err)
			}
			messages = append(messages, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
