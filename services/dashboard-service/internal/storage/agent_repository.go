package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
)

var ErrNotFound = errors.New("not found")

type AgentRepository struct {
	pool *db.Pool
}

func NewAgentRepository(pool *db.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

func (r *AgentRepository) Create(ctx context.Context, agent *model.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO agents (id, tenant_id, name, greeting, model, widget_key_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, agent.ID, agent.TenantID, agent.Name, agent.Greeting, agent.Model, agent.WidgetKeyHash).
		Scan(&agent.CreatedAt)
}

func (r *AgentRepository) Get(ctx context.Context, tenantID, id string) (model.Agent, error) {
	var a model.Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, COALESCE(greeting, ''), model, widget_key_hash, created_at, updated_at
		FROM agents
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&a.ID, &a.TenantID, &a.Name, &a.Greeting, &a.Model, &a.WidgetKeyHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Agent{}, ErrNotFound
		}
		return model.Agent{}, err
	}
	return a, nil
}

func (r *AgentRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, COALESCE(greeting, ''), model, widget_key_hash, created_at, updated_at
		FROM agents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.Greeting, &a.Model,
			&a.WidgetKeyHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return agents, nil
}

func (r *AgentRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM agents WHERE tenant_id = $1
	`, tenantID).Scan(&n)
	return n, err
}

func (r *AgentRepository) Update(ctx context.Context, tenantID, id, name, greeting, modelName string) (model.Agent, error) {
	var a model.Agent
	err := r.pool.QueryRow(ctx, `
		UPDATE agents
		SET name = $3, greeting = $4, model = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING id, tenant_id, name, COALESCE(greeting, ''), model, widget_key_hash, created_at, updated_at
	`, id, tenantID, name, greeting, modelName).
		Scan(&a.ID, &a.TenantID, &a.Name, &a.Greeting, &a.Model, &a.WidgetKeyHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Agent{}, ErrNotFound
		}
		return model.Agent{}, err
	}
	return a, nil
}

func (r *AgentRepository) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM agents WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
