package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/portal-go/internal/models"
)

// backends returns one fresh task store per local backend.
func backends(t *testing.T) map[string]Store[*models.Task] {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store[*models.Task]{
		"memory": NewMemory[*models.Task](),
		"sqlite": NewSQLiteTable[*models.Task](sq),
	}
}

func task(title string, created time.Time) *models.Task {
	return &models.Task{Title: title, Priority: models.PriorityLow, CreatedAt: created}
}

func TestStore_CreateAssignsDefaults(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			got, err := s.Create(ctx, &models.Task{Title: "Water plants"})
			require.NoError(t, err)

			assert.Len(t, got.ID, 16)
			assert.False(t, got.CreatedAt.IsZero())
			assert.Equal(t, models.TaskTodo, got.Status)
			assert.Equal(t, models.PriorityMedium, got.Priority)
			assert.Equal(t, models.KindTask, s.Kind())
		})
	}
}

func TestStore_CreateValidates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(context.Background(), &models.Task{})
			assert.ErrorIs(t, err, models.ErrInvalidRecord)
		})
	}
}

func TestStore_ListOrderAndLimit(t *testing.T) {
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, title := range []string{"bravo", "alpha", "charlie"} {
				_, err := s.Create(ctx, task(title, base.Add(time.Duration(i)*time.Minute)))
				require.NoError(t, err)
			}

			newest, err := s.List(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"charlie", "alpha", "bravo"}, titles(newest))

			byTitle, err := s.List(ctx, ListOptions{Sort: "title", Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "bravo"}, titles(byTitle))

			desc, err := s.List(ctx, ListOptions{Sort: "-title"})
			require.NoError(t, err)
			assert.Equal(t, []string{"charlie", "bravo", "alpha"}, titles(desc))

			_, err = s.List(ctx, ListOptions{Sort: "title); DROP TABLE records; --"})
			assert.ErrorIs(t, err, ErrInvalidSort)
		})
	}
}

func TestStore_EmptyListIsNotNil(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.List(context.Background(), ListOptions{})
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestStore_DuplicateAndMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Create(ctx, &models.Task{ID: "fixed", Title: "One"})
			require.NoError(t, err)

			_, err = s.Create(ctx, &models.Task{ID: "fixed", Title: "Two"})
			assert.ErrorIs(t, err, ErrAlreadyExists)

			require.NoError(t, s.Delete(ctx, "fixed"))
			assert.ErrorIs(t, s.Delete(ctx, "fixed"), ErrNotFound)
		})
	}
}

func TestSQLite_RoundTripsNestedFields(t *testing.T) {
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	defer sq.Close()

	episodes := NewSQLiteTable[*models.Episode](sq)
	ctx := context.Background()
	_, err = episodes.Create(ctx, &models.Episode{Topic: "Tides", Sentences: []string{"One.", "Two."}, DurationSeconds: 4.5})
	require.NoError(t, err)

	got, err := episodes.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Tides", got[0].Title, "title defaults to topic")
	assert.Equal(t, []string{"One.", "Two."}, got[0].Sentences)
	assert.InDelta(t, 4.5, got[0].DurationSeconds, 1e-9)

	// Kinds share one table without leaking into each other.
	tasks := NewSQLiteTable[*models.Task](sq)
	list, err := tasks.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSortRecords_NumbersAndMissing(t *testing.T) {
	calls := []*models.CallLog{
		{ID: "a", PhoneNumber: "1", DurationSeconds: 30},
		{ID: "b", PhoneNumber: "2", DurationSeconds: 5},
		{ID: "c", PhoneNumber: "3", DurationSeconds: 120},
	}
	sortRecords(calls, models.SortSpec{Field: "duration_seconds"})
	assert.Equal(t, "b", calls[0].ID)
	assert.Equal(t, "a", calls[1].ID)
	assert.Equal(t, "c", calls[2].ID)

	contacts := []*models.Contact{
		{ID: "x", Name: "Zed", Company: "Acme"},
		{ID: "y", Name: "Amy"},
	}
	sortRecords(contacts, models.SortSpec{Field: "company"})
	assert.Equal(t, "y", contacts[0].ID, "missing values sort first")
}

func titles(ts []*models.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Title
	}
	return out
}

func TestStores_Wipe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores(nil)

	_, err := s.Tasks.Create(ctx, &models.Task{Title: "one"})
	require.NoError(t, err)
	_, err = s.Tasks.Create(ctx, &models.Task{Title: "two"})
	require.NoError(t, err)
	_, err = s.Conversations.Create(ctx, &models.Conversation{Title: "chat"})
	require.NoError(t, err)

	// Prime the cache so the wipe has to invalidate it.
	tasks, err := s.Tasks.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.NoError(t, s.Wipe(ctx))

	tasks, err = s.Tasks.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	convs, err := s.Conversations.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, convs)
	assert.Len(t, s.Kinds(), 7)
}
