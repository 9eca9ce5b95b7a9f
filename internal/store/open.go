package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/db"
	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/models"
)

// Stores bundles the cached store of every record kind.
type Stores struct {
	Tasks         Store[*models.Task]
	Contacts      Store[*models.Contact]
	Messages      Store[*models.Message]
	Calls         Store[*models.CallLog]
	Conversations Store[*models.Conversation]
	ChatMessages  Store[*models.ChatMessage]
	Episodes      Store[*models.Episode]

	Cache   *Cache
	Backend string

	closers []func() error
	wipe    func(ctx context.Context) error
}

// Open connects the backend selected by cfg.StoreBackend and wraps every
// table with a shared cache.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, mc *metrics.Collector) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stores{Backend: cfg.StoreBackend}

	var bus Bus
	if cfg.NATSURL != "" {
		nb, err := NewNATSBus(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		bus = nb
		s.closers = append(s.closers, nb.Close)
	}

	cache, err := NewCache(cfg.CacheSize, bus, logger, mc)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.Cache = cache

	switch cfg.StoreBackend {
	case config.StoreSurreal:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		s.closers = append(s.closers, func() error { return client.Close(context.Background()) })
		s.wipe = client.WipeData
		if err := client.InitSchema(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.Tasks = NewCached[*models.Task](NewSurreal[*models.Task](client), cache)
		s.Contacts = NewCached[*models.Contact](NewSurreal[*models.Contact](client), cache)
		s.Messages = NewCached[*models.Message](NewSurreal[*models.Message](client), cache)
		s.Calls = NewCached[*models.CallLog](NewSurreal[*models.CallLog](client), cache)
		s.Conversations = NewCached[*models.Conversation](NewSurreal[*models.Conversation](client), cache)
		s.ChatMessages = NewCached[*models.ChatMessage](NewSurreal[*models.ChatMessage](client), cache)
		s.Episodes = NewCached[*models.Episode](NewSurreal[*models.Episode](client), cache)

	case config.StoreSQLite:
		sq, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, sq.Close)
		s.Tasks = NewCached[*models.Task](NewSQLiteTable[*models.Task](sq), cache)
		s.Contacts = NewCached[*models.Contact](NewSQLiteTable[*models.Contact](sq), cache)
		s.Messages = NewCached[*models.Message](NewSQLiteTable[*models.Message](sq), cache)
		s.Calls = NewCached[*models.CallLog](NewSQLiteTable[*models.CallLog](sq), cache)
		s.Conversations = NewCached[*models.Conversation](NewSQLiteTable[*models.Conversation](sq), cache)
		s.ChatMessages = NewCached[*models.ChatMessage](NewSQLiteTable[*models.ChatMessage](sq), cache)
		s.Episodes = NewCached[*models.Episode](NewSQLiteTable[*models.Episode](sq), cache)

	case config.StoreMemory:
		s.useMemory()

	default:
		_ = s.Close(ctx)
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}

	logger.Info("entity store ready", "backend", cfg.StoreBackend, "cache_size", cfg.CacheSize, "nats", cfg.NATSURL != "")
	return s, nil
}

// NewMemoryStores returns cached in-memory stores; used by tests.
func NewMemoryStores(mc *metrics.Collector) *Stores {
	cache, _ := NewCache(256, nil, nil, mc)
	s := &Stores{Backend: config.StoreMemory, Cache: cache}
	s.useMemory()
	return s
}

func (s *Stores) useMemory() {
	s.Tasks = NewCached[*models.Task](NewMemory[*models.Task](), s.Cache)
	s.Contacts = NewCached[*models.Contact](NewMemory[*models.Contact](), s.Cache)
	s.Messages = NewCached[*models.Message](NewMemory[*models.Message](), s.Cache)
	s.Calls = NewCached[*models.CallLog](NewMemory[*models.CallLog](), s.Cache)
	s.Conversations = NewCached[*models.Conversation](NewMemory[*models.Conversation](), s.Cache)
	s.ChatMessages = NewCached[*models.ChatMessage](NewMemory[*models.ChatMessage](), s.Cache)
	s.Episodes = NewCached[*models.Episode](NewMemory[*models.Episode](), s.Cache)
}

// Close releases the backend connection and the invalidation bus.
func (s *Stores) Close(_ context.Context) error {
	if s.Cache != nil {
		s.Cache.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Wipe deletes every record of every kind. Use for testing only.
func (s *Stores) Wipe(ctx context.Context) error {
	if s.wipe != nil {
		if err := s.wipe(ctx); err != nil {
			return err
		}
		if s.Cache != nil {
			for _, kind := range s.Kinds() {
				s.Cache.Invalidate(ctx, kind)
			}
		}
		return nil
	}
	return errors.Join(
		wipeTable(ctx, s.Tasks),
		wipeTable(ctx, s.Contacts),
		wipeTable(ctx, s.Messages),
		wipeTable(ctx, s.Calls),
		wipeTable(ctx, s.Conversations),
		wipeTable(ctx, s.ChatMessages),
		wipeTable(ctx, s.Episodes),
	)
}

func wipeTable[T models.Record](ctx context.Context, st Store[T]) error {
	recs, err := st.List(ctx, ListOptions{})
	if err != nil {
		return fmt.Errorf("wipe %s: %w", st.Kind(), err)
	}
	for _, rec := range recs {
		if err := st.Delete(ctx, rec.RecordID()); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("wipe %s: %w", st.Kind(), err)
		}
	}
	return nil
}

// Kinds returns the record kinds held by s.
func (s *Stores) Kinds() []string {
	return []string{
		s.Tasks.Kind(), s.Contacts.Kind(), s.Messages.Kind(), s.Calls.Kind(),
		s.Conversations.Kind(), s.ChatMessages.Kind(), s.Episodes.Kind(),
	}
}
