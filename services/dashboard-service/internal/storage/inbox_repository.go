package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/o-castellano/botdesk/libs/db"
	"github.com/o-castellano/botdesk/services/dashboard-service/internal/model"
)

// InboxRepository persists widget conversations and messages, plus the
// inbox_events dedupe table for the Kafka consumer.
type InboxRepository struct {
	pool *db.Pool
}

func NewInboxRepository(pool *db.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

// RecordEvent claims a consumed event id. False means the event was already
// processed and must be skipped.
func (r *InboxRepository) RecordEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// AppendMessage upserts the (agent, visitor) conversation and appends the
// message to it in one transaction.
func (r *InboxRepository) AppendMessage(ctx context.Context, agentID, visitorID, sender, body string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var conversationID string
	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (id, agent_id, visitor_id, last_message_at, message_count)
		VALUES ($1, $2, $3, now(), 1)
		ON CONFLICT (agent_id, visitor_id)
		DO UPDATE SET last_message_at = now(), message_count = conversations.message_count + 1
		RETURNING id
	`, uuid.NewString(), agentID, visitorID).Scan(&conversationID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, body)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), conversationID, sender, body); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *InboxRepository) ListConversations(ctx context.Context, tenantID, agentID string, limit int) ([]model.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.agent_id, c.visitor_id, c.last_message_at, c.message_count, c.created_at
		FROM conversations c
		JOIN agents a ON a.id = c.agent_id
		WHERE c.agent_id = $1 AND a.tenant_id = $2
		ORDER BY c.last_message_at DESC
		LIMIT $3
	`, agentID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.AgentID, &c.VisitorID, &c.LastMessageAt, &c.MessageCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return convs, nil
}

func (r *InboxRepository) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.conversation_id, m.sender, m.body, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		JOIN agents a ON a.id = c.agent_id
		WHERE m.conversation_id = $1 AND a.tenant_id = $2
		ORDER BY m.created_at ASC
		LIMIT $3
	`, conversationID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}
