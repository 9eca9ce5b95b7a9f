package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/portal-go/internal/client"
	"github.com/raphaelgruber/portal-go/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show server runtime statistics: timings, token usage, cache hit rate
and live playback resources.

Examples:
  portal stats
  portal stats --json`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	if jsonOut {
		return printJSON(stats)
	}
	printServerStats(stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(stats *client.Stats) {
	m := stats.Metrics
	fmt.Fprintf(stdout, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(stdout, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(stdout, "Version: %s\n", stats.Version)
	fmt.Fprintf(stdout, "Uptime: %.1f seconds\n", stats.UptimeSeconds)
	fmt.Fprintf(stdout, "Podcast sessions: %d (live buffers: %d)\n", stats.Sessions, m.LiveBuffers)

	sections := []struct {
		title  string
		op     *metrics.OperationSnapshot
		tokens bool
	}{
		{"LLM Generate", m.LLMGenerate, true},
		{"LLM Retry", m.LLMRetry, false},
		{"TTS Synthesize", m.TTSSynthesize, false},
		{"Store Query", m.StoreQuery, false},
		{"Store Mutate", m.StoreMutate, false},
	}
	for _, sec := range sections {
		if sec.op == nil {
			continue
		}
		fmt.Fprintf(stdout, "\n%s:\n", sec.title)
		printOpStats(sec.op)
		if sec.tokens {
			printTokenStats(sec.op)
		}
	}

	hits, misses := opCount(m.CacheHit), opCount(m.CacheMiss)
	if total := hits + misses; total > 0 {
		fmt.Fprintf(stdout, "\nCache: %d hits, %d misses (%.1f%% hit rate)\n", hits, misses, float64(hits)/float64(total)*100)
	}
}

func opCount(op *metrics.OperationSnapshot) int64 {
	if op == nil {
		return 0
	}
	return op.Count
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Fprintf(stdout, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(stdout, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(stdout, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(stdout, ", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(stdout, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(stdout)

	fmt.Fprintf(stdout, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(stdout, ", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(stdout, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(stdout)
}
