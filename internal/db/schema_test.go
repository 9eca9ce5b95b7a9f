package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/portal-go/internal/models"
)

func TestSchemaSQL_DefinesEveryKind(t *testing.T) {
	sql := SchemaSQL()
	for _, kind := range models.Kinds {
		assert.Contains(t, sql, "DEFINE TABLE IF NOT EXISTS "+kind+" SCHEMAFULL;")
		assert.Contains(t, sql, "DEFINE INDEX IF NOT EXISTS "+kind+"_created_at ON "+kind)
	}
}
