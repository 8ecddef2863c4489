package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/SaibSameer/icmp-sub000/internal/db"
	"github.com/SaibSameer/icmp-sub000/internal/extraction"
)

// StageRepository reads a business's configured stage graph.
type StageRepository struct {
	manager *db.Manager
}

func NewStageRepository(manager *db.Manager) *StageRepository {
	if manager == nil {
		panic("store: connection manager required")
	}
	return &StageRepository{manager: manager}
}

// GetByID loads a stage by id.
func (r *StageRepository) GetByID(ctx context.Context, id string) (*Stage, error) {
	var stage Stage
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, business_id, name, stage_type,
			       extraction_template_id, selection_template_id, response_template_id,
			       created_at
			FROM stages
			WHERE id = $1
		`, id)
		return scanStage(row, &stage)
	})
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// InitialStage returns the business's entry stage. With multiple initial
// stages configured, the oldest wins so new conversations land predictably.
func (r *StageRepository) InitialStage(ctx context.Context, businessID string) (*Stage, error) {
	var stage Stage
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, business_id, name, stage_type,
			       extraction_template_id, selection_template_id, response_template_id,
			       created_at
			FROM stages
			WHERE business_id = $1 AND stage_type = 'initial'
			ORDER BY created_at ASC
			LIMIT 1
		`, businessID)
		return scanStage(row, &stage)
	})
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// TransitionsFrom returns the outgoing transitions of a stage ordered by
// priority, then id for a stable order among equal priorities.
func (r *StageRepository) TransitionsFrom(ctx context.Context, stageID string) ([]Transition, error) {
	var transitions []Transition
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, from_stage_id, to_stage_id, condition, priority
			FROM stage_transitions
			WHERE from_stage_id = $1
			ORDER BY priority ASC, id ASC
		`, stageID)
		if err != nil {
			return fmt.Errorf("store: transitions select failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t Transition
			if err := rows.Scan(&t.ID, &t.FromStageID, &t.ToStageID, &t.Condition, &t.Priority); err != nil {
				return fmt.Errorf("store: transition scan failed: %w", err)
			}
			transitions = append(transitions, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return transitions, nil
}

// StageNames lists every stage name configured for a business. The result
// bounds the intent classifier's vocabulary.
func (r *StageRepository) StageNames(ctx context.Context, businessID string) ([]string, error) {
	var names []string
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT name FROM stages WHERE business_id = $1 ORDER BY name
		`, businessID)
		if err != nil {
			return fmt.Errorf("store: stage names select failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("store: stage name scan failed: %w", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// StageByName resolves a stage within a business by its unique name.
func (r *StageRepository) StageByName(ctx context.Context, businessID, name string) (*Stage, error) {
	var stage Stage
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT id, business_id, name, stage_type,
			       extraction_template_id, selection_template_id, response_template_id,
			       created_at
			FROM stages
			WHERE business_id = $1 AND name = $2
		`, businessID, name)
		return scanStage(row, &stage)
	})
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// ExtractionRules loads and parses the stage's extraction rules.
func (r *StageRepository) ExtractionRules(ctx context.Context, stageID string) ([]extraction.Rule, error) {
	var rules []extraction.Rule
	err := r.manager.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT method, field, params
			FROM extraction_rules
			WHERE stage_id = $1
			ORDER BY created_at ASC
		`, stageID)
		if err != nil {
			return fmt.Errorf("store: extraction rules select failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				method, field string
				raw           []byte
			)
			if err := rows.Scan(&method, &field, &raw); err != nil {
				return fmt.Errorf("store: extraction rule scan failed: %w", err)
			}
			params := map[string]any{}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &params); err != nil {
					return fmt.Errorf("store: extraction rule params decode failed: %w", err)
				}
			}
			rule, err := extraction.ParseRule(method, field, params)
			if err != nil {
				return err
			}
			rules = append(rules, rule)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func scanStage(row pgx.Row, stage *Stage) error {
	var extractionTpl, selectionTpl, responseTpl pgtype.Text
	err := row.Scan(&stage.ID, &stage.BusinessID, &stage.Name, &stage.Type,
		&extractionTpl, &selectionTpl, &responseTpl, &stage.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStageNotFound
		}
		return fmt.Errorf("store: stage select failed: %w", err)
	}
	stage.ExtractionTemplateID = extractionTpl.String
	stage.SelectionTemplateID = selectionTpl.String
	stage.ResponseTemplateID = responseTpl.String
	return nil
}
