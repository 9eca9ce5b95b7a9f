package models

import "time"

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation represents a persistent AI chat session.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) Kind() string { return KindConversation }
func (c *Conversation) RecordID() string { return c.ID }
func (c *Conversation) SetRecordID(id string) { c.ID = id }
func (c *Conversation) Created() time.Time { return c.CreatedAt }
func (c *Conversation) SetCreated(ts time.Time) {
	c.CreatedAt = ts
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = ts
	}
}

// ChatMessage represents a single chat message within a conversation.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m *ChatMessage) Kind() string { return KindChatMessage }
func (m *ChatMessage) RecordID() string { return m.ID }
func (m *ChatMessage) SetRecordID(id string) { m.ID = id }
func (m *ChatMessage) Created() time.Time { return m.CreatedAt }
func (m *ChatMessage) SetCreated(ts time.Time) { m.CreatedAt = ts }

// Validate checks required fields.
func (m *ChatMessage) Validate() error {
	if m.ConversationID == "" {
		return invalid(KindChatMessage, "conversation_id is required")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return invalid(KindChatMessage, "unknown role "+m.Role)
	}
	return nil
}
