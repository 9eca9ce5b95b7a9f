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

// MessageDraft is the status of messages drafted on the communications page.
const MessageDraft = "draft"

// DraftRequest asks for a message to a stored contact.
type DraftRequest struct {
	ContactID string `json:"contact_id"`
	Channel   string `json:"channel,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}

// DraftPage is the communications page state after drafting.
type DraftPage struct {
	render.DraftView
	ContactID string             `json:"contact_id"`
	Channel   string             `json:"channel"`
	MessageID string             `json:"message_id,omitempty"`
	Error     *render.ErrorPanel `json:"error,omitempty"`
}

// CommsService drafts messages to contacts and records them.
type CommsService struct {
	runner   *Runner
	composer *prompt.Composer
	contacts store.Store[*models.Contact]
	messages store.Store[*models.Message]
	logger   *slog.Logger
}

// NewCommsService creates a CommsService.
func NewCommsService(runner *Runner, composer *prompt.Composer, contacts store.Store[*models.Contact],
	messages store.Store[*models.Message], logger *slog.Logger) *CommsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommsService{runner: runner, composer: composer, contacts: contacts, messages: messages, logger: logger}
}

// Draft composes a message to the contact and stores it as an outbound draft.
func (s *CommsService) Draft(ctx context.Context, scope string, req DraftRequest) (*DraftPage, error) {
	contact, err := s.contact(ctx, req.ContactID)
	if err != nil {
		return nil, err
	}

	channel := strings.ToLower(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = models.ChannelEmail
		if contact.Email == "" {
			channel = models.ChannelSMS
		}
	}
	if channel != models.ChannelEmail && channel != models.ChannelSMS {
		return nil, fmt.Errorf("%w: message: unknown channel %s", models.ErrInvalidRecord, channel)
	}

	preq := s.composer.MessageDraft(prompt.DraftSelection{
		ContactName: contact.Name,
		Company:     contact.Company,
		Channel:     channel,
		Purpose:     req.Purpose,
	})
	return runPage(ctx, s.runner, Key(scope, PageDraft), preq,
		func(ctx context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (*DraftPage, error) {
			page := &DraftPage{ContactID: contact.ID, Channel: channel, Error: panel}
			if panel != nil {
				page.Empty = true
				return page, nil
			}
			page.DraftView = render.Draft(render.FromResult(res))
			if page.Empty {
				return page, nil
			}
			if channel == models.ChannelSMS {
				page.Subject = ""
			}
			msg, err := s.messages.Create(ctx, &models.Message{
				ContactID: contact.ID,
				Channel:   channel,
				Direction: models.DirectionOutbound,
				Subject:   page.Subject,
				Body:      page.Body,
				Status:    MessageDraft,
			})
			if err != nil {
				s.logger.Warn("failed to save draft", "contact", contact.ID, "error", err)
				return page, nil
			}
			page.MessageID = msg.ID
			return page, nil
		})
}

func (s *CommsService) contact(ctx context.Context, id string) (*models.Contact, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: draft: contact_id is required", models.ErrInvalidRecord)
	}
	contacts, err := s.contacts.List(ctx, store.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	for _, c := range contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("contact %s: %w", id, store.ErrNotFound)
}
