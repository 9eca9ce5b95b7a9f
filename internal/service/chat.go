package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/render"
	"github.com/raphaelgruber/portal-go/internal/store"
)

// maxTitleLen caps conversation titles derived from the first message.
const maxTitleLen = 60

// ChatRequest is one user turn.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// ChatPage is the chat page state after one turn.
type ChatPage struct {
	render.ChatReplyView
	MessageID string             `json:"message_id,omitempty"`
	Error     *render.ErrorPanel `json:"error,omitempty"`
}

// ChatService runs AI chat with persisted history.
type ChatService struct {
	runner        *Runner
	composer      *prompt.Composer
	conversations store.Store[*models.Conversation]
	messages      store.Store[*models.ChatMessage]
	logger        *slog.Logger
}

// NewChatService creates a ChatService.
func NewChatService(runner *Runner, composer *prompt.Composer, conversations store.Store[*models.Conversation],
	messages store.Store[*models.ChatMessage], logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{runner: runner, composer: composer, conversations: conversations, messages: messages, logger: logger}
}

// Send stores the user's message, asks for a reply and stores the reply.
// A new conversation is started when req names none.
func (s *ChatService) Send(ctx context.Context, scope string, req ChatRequest) (*ChatPage, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, fmt.Errorf("%w: chat: message is required", models.ErrInvalidRecord)
	}

	convID := req.ConversationID
	if convID == "" {
		conv, err := s.conversations.Create(ctx, &models.Conversation{Title: titleFrom(text)})
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		convID = conv.ID
	}

	history, err := s.History(ctx, convID)
	if err != nil {
		return nil, err
	}
	if req.ConversationID != "" && len(history) == 0 {
		if _, err := s.findConversation(ctx, convID); err != nil {
			return nil, err
		}
	}

	if _, err := s.messages.Create(ctx, &models.ChatMessage{ConversationID: convID, Role: models.RoleUser, Content: text}); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	preq := s.composer.ChatReply(history, text)
	return runPage(ctx, s.runner, Key(scope, PageChat), preq,
		func(ctx context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (*ChatPage, error) {
			if panel != nil {
				return &ChatPage{ChatReplyView: render.ChatReplyView{ConversationID: convID, Empty: true}, Error: panel}, nil
			}
			view := render.ChatReply(res)
			view.ConversationID = convID
			page := &ChatPage{ChatReplyView: view}
			if view.Empty {
				return page, nil
			}
			msg, err := s.messages.Create(ctx, &models.ChatMessage{ConversationID: convID, Role: models.RoleAssistant, Content: view.Reply})
			if err != nil {
				s.logger.Warn("failed to save assistant reply", "conversation", convID, "error", err)
				return page, nil
			}
			page.MessageID = msg.ID
			return page, nil
		})
}

// History returns a conversation's messages, oldest first.
func (s *ChatService) History(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	all, err := s.messages.List(ctx, store.ListOptions{Sort: "created_at"})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := []models.ChatMessage{}
	for _, m := range all {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// Conversations lists conversations, newest first.
func (s *ChatService) Conversations(ctx context.Context, limit int) ([]*models.Conversation, error) {
	return s.conversations.List(ctx, store.ListOptions{Limit: limit})
}

func (s *ChatService) findConversation(ctx context.Context, id string) (*models.Conversation, error) {
	convs, err := s.conversations.List(ctx, store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for _, c := range convs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
}

func titleFrom(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxTitleLen {
		return string(r[:maxTitleLen-1]) + "…"
	}
	return text
}

