package store

import (
	"context"
	"fmt"

	"github.com/SaibSameer/icmp-sub000/internal/db"
)

// LLMCallRepository records model invocations. The table is append-only;
// nothing updates or deletes rows, so retries show up as separate entries.
type LLMCallRepository struct {
	manager *db.Manager
}

func NewLLMCallRepository(manager *db.Manager) *LLMCallRepository {
	if manager == nil {
		panic("store: connection manager required")
	}
	return &LLMCallRepository{manager: manager}
}

// Insert records one call. The caller supplies the id so it can log the id
// even when the insert itself fails.
func (r *LLMCallRepository) Insert(ctx context.Context, call *LLMCall) error {
	return r.manager.WithConn(ctx, func(conn db.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO llm_calls
				(id, business_id, conversation_id, call_type,
				 input_text, system_prompt, response_text,
				 input_tokens, output_tokens)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, call.ID, nilIfEmpty(call.BusinessID), nilIfEmpty(call.ConversationID), call.CallType,
			call.InputText, call.SystemPrompt, call.ResponseText,
			call.InputTokens, call.OutputTokens)
		if err != nil {
			return fmt.Errorf("store: llm call insert failed: %w", err)
		}
		return nil
	})
}

// ForConversation lists a conversation's calls oldest first.
func (r *LLMCallRepository) ForConversation(ctx context.Context, conversationID string) ([]LLMCall, error) {
	var calls []LLMCall
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, COALESCE(business_id::text, ''), COALESCE(conversation_id::text, ''),
			       call_type, input_text, system_prompt, response_text,
			       input_tokens, output_tokens, created_at
			FROM llm_calls
			WHERE conversation_id = $1
			ORDER BY created_at ASC
		`, conversationID)
		if err != nil {
			return fmt.Errorf("store: llm calls select failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c LLMCall
			if err := rows.Scan(&c.ID, &c.BusinessID, &c.ConversationID, &c.CallType,
				&c.InputText, &c.SystemPrompt, &c.ResponseText,
				&c.InputTokens, &c.OutputTokens, &c.CreatedAt); err != nil {
				return fmt.Errorf("store: llm call scan failed: %w", err)
			}
			calls = append(calls, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return calls, nil
}
