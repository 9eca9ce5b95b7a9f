package models

import (
	"errors"
	"fmt"
	"time"
)

// Record is an entity mirrored from the entity store.
// Implementations use pointer receivers; stores are instantiated with *T.
type Record interface {
	Kind() string
	RecordID() string
	SetRecordID(id string)
	Created() time.Time
	SetCreated(t time.Time)
}

// Validator is implemented by records that check their fields before create.
type Validator interface {
	Validate() error
}

// ErrInvalidRecord is returned when a record fails validation.
var ErrInvalidRecord = errors.New("invalid record")

func invalid(kind, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidRecord, kind, msg)
}

// Record kinds, also used as table names.
const (
	KindTask         = "task"
	KindContact      = "contact"
	KindMessage      = "message"
	KindCallLog      = "call_log"
	KindConversation = "conversation"
	KindChatMessage  = "chat_message"
	KindEpisode      = "episode"
)

// Kinds lists every record kind.
var Kinds = []string{KindTask, KindContact, KindMessage, KindCallLog, KindConversation, KindChatMessage, KindEpisode}

// Task statuses and priorities.
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is a tracked to-do item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t *Task) Kind() string { return KindTask }
func (t *Task) RecordID() string { return t.ID }
func (t *Task) SetRecordID(id string) { t.ID = id }
func (t *Task) Created() time.Time { return t.CreatedAt }
func (t *Task) SetCreated(ts time.Time) { t.CreatedAt = ts }

// Validate fills defaults and checks required fields.
func (t *Task) Validate() error {
	if t.Title == "" {
		return invalid(KindTask, "title is required")
	}
	if t.Status == "" {
		t.Status = TaskTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	switch t.Status {
	case TaskTodo, TaskInProgress, TaskDone:
	default:
		return invalid(KindTask, "unknown status "+t.Status)
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return invalid(KindTask, "unknown priority "+t.Priority)
	}
	return nil
}

// Contact is an address book entry.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Contact) Kind() string { return KindContact }
func (c *Contact) RecordID() string { return c.ID }
func (c *Contact) SetRecordID(id string) { c.ID = id }
func (c *Contact) Created() time.Time { return c.CreatedAt }
func (c *Contact) SetCreated(ts time.Time) { c.CreatedAt = ts }

// Validate checks required fields.
func (c *Contact) Validate() error {
	if c.Name == "" {
		return invalid(KindContact, "name is required")
	}
	if c.Email == "" && c.Phone == "" {
		return invalid(KindContact, "email or phone is required")
	}
	return nil
}

// Message channels and directions.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Message is an email or SMS exchanged with a contact.
type Message struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contact_id"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) Kind() string { return KindMessage }
func (m *Message) RecordID() string { return m.ID }
func (m *Message) SetRecordID(id string) { m.ID = id }
func (m *Message) Created() time.Time { return m.CreatedAt }
func (m *Message) SetCreated(ts time.Time) { m.CreatedAt = ts }

// Validate fills defaults and checks required fields.
func (m *Message) Validate() error {
	if m.Body == "" {
		return invalid(KindMessage, "body is required")
	}
	if m.Channel == "" {
		m.Channel = ChannelEmail
	}
	if m.Direction == "" {
		m.Direction = DirectionOutbound
	}
	if m.Channel != ChannelEmail && m.Channel != ChannelSMS {
		return invalid(KindMessage, "unknown channel "+m.Channel)
	}
	return nil
}

// CallLog records a phone call with a contact.
type CallLog struct {
	ID              string    `json:"id"`
	ContactID       string    `json:"contact_id,omitempty"`
	PhoneNumber     string    `json:"phone_number"`
	DurationSeconds int       `json:"duration_seconds"`
	Outcome         string    `json:"outcome,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (c *CallLog) Kind() string { return KindCallLog }
func (c *CallLog) RecordID() string { return c.ID }
func (c *CallLog) SetRecordID(id string) { c.ID = id }
func (c *CallLog) Created() time.Time { return c.CreatedAt }
func (c *CallLog) SetCreated(ts time.Time) { c.CreatedAt = ts }

// Validate checks required fields.
func (c *CallLog) Validate() error {
	if c.PhoneNumber == "" {
		return invalid(KindCallLog, "phone_number is required")
	}
	if c.DurationSeconds < 0 {
		return invalid(KindCallLog, "duration_seconds must be >= 0")
	}
	return nil
}
