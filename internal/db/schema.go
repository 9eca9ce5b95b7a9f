package db

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/portal-go/internal/models"
)

// Records are stored as {data, created_at}; data holds the JSON shape of
// the model so new fields need no migration.
const tableSQL = `
    DEFINE TABLE IF NOT EXISTS %[1]s SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS data ON %[1]s TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON %[1]s TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS %[1]s_created_at ON %[1]s FIELDS created_at;
`

// SchemaSQL returns the schema statements for every record kind.
func SchemaSQL() string {
	var b strings.Builder
	for _, kind := range models.Kinds {
		fmt.Fprintf(&b, tableSQL, kind)
	}
	// Chat history is read per conversation.
	b.WriteString("    DEFINE INDEX IF NOT EXISTS chat_message_conversation ON chat_message FIELDS data.conversation_id;\n")
	return b.String()
}
