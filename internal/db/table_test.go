//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/portal-go/internal/models"
)

var testDB *Client

func TestMain(m *testing.M) {
	// ryuk misbehaves on some CI runners
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newTask(id, title string, created time.Time) *models.Task {
	return &models.Task{ID: id, Title: title, Status: models.TaskTodo, Priority: models.PriorityMedium, CreatedAt: created}
}

func TestTable_CreateListDelete(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	tasks := NewTable[*models.Task](testDB)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, tasks.Create(ctx, newTask("t1", "Write report", base)))
	require.NoError(t, tasks.Create(ctx, newTask("t2", "Call Ada", base.Add(time.Hour))))

	list, err := tasks.List(ctx, models.SortSpec{}, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].ID, "default order is newest first")
	assert.Equal(t, "Call Ada", list[0].Title)

	byTitle, err := tasks.List(ctx, models.SortSpec{Field: "title"}, 1)
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "t2", byTitle[0].ID)

	require.NoError(t, tasks.Delete(ctx, "t1"))
	assert.ErrorIs(t, tasks.Delete(ctx, "t1"), ErrNotFound)
}

func TestTable_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	tasks := NewTable[*models.Task](testDB)
	now := time.Now().UTC()

	require.NoError(t, tasks.Create(ctx, newTask("dup", "First", now)))
	assert.ErrorIs(t, tasks.Create(ctx, newTask("dup", "Second", now)), ErrAlreadyExists)
}

func TestTable_RejectsInvalidSortField(t *testing.T) {
	tasks := NewTable[*models.Task](testDB)
	_, err := tasks.List(context.Background(), models.SortSpec{Field: "title; DELETE task"}, 0)
	assert.ErrorIs(t, err, ErrInvalidSort)
}
