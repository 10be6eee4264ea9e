package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
)

type SourceRepository struct {
	pool *db.Pool
}

func NewSourceRepository(pool *db.Pool) *SourceRepository {
	return &SourceRepository{pool: pool}
}

// Create inserts a source in pending status; ownership is checked against
// the agents table so a tenant cannot attach sources to a foreign agent.
func (r *SourceRepository) Create(ctx context.Context, tenantID string, src *model.KnowledgeSource) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	src.Status = model.SourceStatusPending
	err := r.pool.QueryRow(ctx, `
		INSERT INTO knowledge_sources (id, agent_id, kind, location, status)
		SELECT $1, a.id, $3, $4, $5
		FROM agents a
		WHERE a.id = $2 AND a.tenant_id = $6
		RETURNING created_at
	`, src.ID, src.AgentID, src.Kind, src.Location, src.Status, tenantID).Scan(&src.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *SourceRepository) ListByAgent(ctx context.Context, tenantID, agentID string) ([]model.KnowledgeSource, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.agent_id, s.kind, s.location, s.status, s.created_at
		FROM knowledge_sources s
		JOIN agents a ON a.id = s.agent_id
		WHERE s.agent_id = $1 AND a.tenant_id = $2
		ORDER BY s.created_at DESC
	`, agentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []model.KnowledgeSource
	for rows.Next() {
		var s model.KnowledgeSource
		if err := rows.Scan(&s.ID, &s.AgentID, &s.Kind, &s.Location, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sources, nil
}

func (r *SourceRepository) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM knowledge_sources s
		USING agents a
		WHERE s.id = $1 AND s.agent_id = a.id AND a.tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetStatus is called by the indexing callback; only pending sources move.
func (r *SourceRepository) SetStatus(ctx context.Context, id, status string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE knowledge_sources
		SET status = $2
		WHERE id = $1 AND status = 'pending'
	`, id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
