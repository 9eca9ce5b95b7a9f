// Package cli provides the command-line interface for the portal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/portal-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	jsonOut   bool
	serverURL string
	scopeName string

	// Global API client
	apiClient *client.Client

	// stdout is where commands print; tests swap it.
	stdout io.Writer = os.Stdout
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Personal dashboard in the terminal",
	Long: `Portal is a personal dashboard backed by an LLM: market forecasts,
stock analytics, learning paths, AI chat, contact drafts and narrated
podcast episodes with synced captions.

Commands talk to a running portal-server (PORTAL_SERVER_URL).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip client setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		if scopeName != "" {
			apiClient = apiClient.WithScope(scopeName)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON responses")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $PORTAL_SERVER_URL or http://localhost:8585)")
	rootCmd.PersistentFlags().StringVar(&scopeName, "scope", "", "page scope; requests in one scope supersede each other")

	// Add subcommands
	rootCmd.AddCommand(forecastCmd)
	rootCmd.AddCommand(stocksCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(ideasCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(podcastCmd)
	rootCmd.AddCommand(statsCmd)
}

// printJSON writes v as indented JSON.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(stdout, string(b))
	return nil
}
