package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	recordsSort  string
	recordsLimit int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List, add and delete stored records",
	Long: `Manage tasks, contacts, messages, call logs, conversations and episodes.

Examples:
  portal records kinds
  portal records list task --sort -priority -n 10
  portal records add task '{"title": "File taxes", "priority": "high"}'
  echo '{"name": "Ada", "email": "ada@example.com"}' | portal records add contact -
  portal records delete task 3f9a1c2b7d4e5f60`,
}

var recordsKindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List record kinds",
	RunE: func(cmd *cobra.Command, args []string) error {
		var kinds []string
		if err := apiClient.Do(context.Background(), "GET", "/api/records", nil, &kinds); err != nil {
			return fmt.Errorf("list kinds: %w", err)
		}
		for _, k := range kinds {
			fmt.Fprintln(stdout, k)
		}
		return nil
	},
}

var recordsListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List records of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := apiClient.ListRecords(context.Background(), args[0], recordsSort, recordsLimit)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		if jsonOut {
			return printJSON(raw)
		}
		var recs []map[string]any
		if err := json.Unmarshal(raw, &recs); err != nil {
			return fmt.Errorf("decode records: %w", err)
		}
		if len(recs) == 0 {
			fmt.Fprintf(stdout, "No %s records found.\n", args[0])
			return nil
		}

		fmt.Fprintf(stdout, "%s (%d):\n\n", args[0], len(recs))
		for _, rec := range recs {
			fmt.Fprintf(stdout, "- %v  %s\n", rec["id"], headline(rec))
			if verbose {
				b, _ := json.MarshalIndent(rec, "", "  ")
				fmt.Fprintln(stdout, indent(string(b), "    "))
			}
		}
		return nil
	},
}

var recordsAddCmd = &cobra.Command{
	Use:   "add <kind> <json|->",
	Short: "Add a record from JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := []byte(args[1])
		if args[1] == "-" {
			var err error
			body, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
		}
		if !json.Valid(bytes.TrimSpace(body)) {
			return fmt.Errorf("record body is not valid JSON")
		}

		raw, err := apiClient.CreateRecord(context.Background(), args[0], body)
		if err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		if jsonOut {
			return printJSON(raw)
		}
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		fmt.Fprintf(stdout, "Created %s: %s (%v)\n", args[0], headline(rec), rec["id"])
		return nil
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <kind> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.DeleteRecord(context.Background(), args[0], args[1]); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		fmt.Fprintf(stdout, "Deleted %s %s\n", args[0], args[1])
		return nil
	},
}

// headlineFields are tried in order to label a record in listings.
var headlineFields = []string{"title", "name", "subject", "content", "body", "phone_number"}

func headline(rec map[string]any) string {
	for _, f := range headlineFields {
		if s, ok := rec[f].(string); ok && strings.TrimSpace(s) != "" {
			s = strings.Join(strings.Fields(s), " ")
			if r := []rune(s); len(r) > 60 {
				s = string(r[:57]) + "..."
			}
			return s
		}
	}
	return ""
}

func init() {
	recordsListCmd.Flags().StringVarP(&recordsSort, "sort", "s", "", "sort field, prefix with - for descending (default -created_at)")
	recordsListCmd.Flags().IntVarP(&recordsLimit, "limit", "n", 50, "max results")

	recordsCmd.AddCommand(recordsKindsCmd)
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsAddCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
}
