package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SaibSameer/icmp-sub000/internal/db"
)

// TemplateRepository reads prompt templates.
type TemplateRepository struct {
	manager *db.Manager
}

func NewTemplateRepository(manager *db.Manager) *TemplateRepository {
	if manager == nil {
		panic("store: connection manager required")
	}
	return &TemplateRepository{manager: manager}
}

// Content returns a template's text by id.
func (r *TemplateRepository) Content(ctx context.Context, id string) (string, error) {
	var content string
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT content FROM templates WHERE id = $1
		`, id)
		if err := row.Scan(&content); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTemplateNotFound
			}
			return fmt.Errorf("store: template select failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
