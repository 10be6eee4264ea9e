package model

import "time"

// Agent is a tenant's chatbot. WidgetKeyHash is the bcrypt hash of the
// widget key; the plaintext key is shown exactly once at creation.
type Agent struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Name          string     `json:"name"`
	Greeting      string     `json:"greeting,omitempty"`
	Model         string     `json:"model"`
	WidgetKeyHash string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

const (
	SourceKindURL  = "url"
	SourceKindText = "text"

	SourceStatusPending = "pending"
	SourceStatusIndexed = "indexed"
	SourceStatusFailed  = "failed"
)

// KnowledgeSource is a document or URL an agent answers from.
type KnowledgeSource struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Kind      string    `json:"kind"`
	Location  string    `json:"location"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation groups widget messages from one visitor session.
type Conversation struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agent_id"`
	VisitorID     string    `json:"visitor_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is one turn inside a conversation. Sender is visitor|agent.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
)

type Appointment struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	AgentID       string     `json:"agent_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	Status        string     `json:"status"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
