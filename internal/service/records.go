package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/store"
)

// ErrUnknownKind is returned for a record kind the portal does not store.
var ErrUnknownKind = errors.New("unknown record kind")

// table is a kind-erased view of one store, fed and read as JSON.
type table interface {
	list(ctx context.Context, opts store.ListOptions) (any, error)
	create(ctx context.Context, body []byte) (any, error)
	delete(ctx context.Context, id string) error
}

type jsonTable[T models.Record] struct {
	store store.Store[T]
}

func (t jsonTable[T]) list(ctx context.Context, opts store.ListOptions) (any, error) {
	return t.store.List(ctx, opts)
}

func (t jsonTable[T]) create(ctx context.Context, body []byte) (any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, fmt.Errorf("%w: %s: empty body", models.ErrInvalidRecord, t.store.Kind())
	}
	var rec T
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidRecord, t.store.Kind(), err)
	}
	return t.store.Create(ctx, rec)
}

func (t jsonTable[T]) delete(ctx context.Context, id string) error {
	return t.store.Delete(ctx, id)
}

// RecordsService exposes list/create/delete over every record kind.
type RecordsService struct {
	tables map[string]table
}

// NewRecordsService creates a RecordsService over stores.
func NewRecordsService(stores *store.Stores) *RecordsService {
	return &RecordsService{tables: map[string]table{
		models.KindTask:         jsonTable[*models.Task]{stores.Tasks},
		models.KindContact:      jsonTable[*models.Contact]{stores.Contacts},
		models.KindMessage:      jsonTable[*models.Message]{stores.Messages},
		models.KindCallLog:      jsonTable[*models.CallLog]{stores.Calls},
		models.KindConversation: jsonTable[*models.Conversation]{stores.Conversations},
		models.KindChatMessage:  jsonTable[*models.ChatMessage]{stores.ChatMessages},
		models.KindEpisode:      jsonTable[*models.Episode]{stores.Episodes},
	}}
}

// Kinds lists the record kinds, sorted.
func (s *RecordsService) Kinds() []string {
	kinds := make([]string, 0, len(s.tables))
	for k := range s.tables {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (s *RecordsService) table(kind string) (table, error) {
	t, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return t, nil
}

// List returns records of kind.
func (s *RecordsService) List(ctx context.Context, kind string, opts store.ListOptions) (any, error) {
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	return t.list(ctx, opts)
}

// Create decodes body as a record of kind and stores it.
func (s *RecordsService) Create(ctx context.Context, kind string, body []byte) (any, error) {
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	return t.create(ctx, body)
}

// Delete removes the record of kind with id.
func (s *RecordsService) Delete(ctx context.Context, kind, id string) error {
	t, err := s.table(kind)
	if err != nil {
		return err
	}
	return t.delete(ctx, id)
}
