package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and engine counters",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.engine.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "store backend:    %s\n", rt.cfg.StoreBackend)
	fmt.Fprintf(out, "stored chunks:    %d\n", stats.Chunks)
	fmt.Fprintf(out, "queries:          %d\n", stats.Queries)
	fmt.Fprintf(out, "cache hits:       %d\n", stats.CacheHits)
	fmt.Fprintf(out, "cache misses:     %d\n", stats.CacheMisses)
	fmt.Fprintf(out, "degraded stages:  %d\n", stats.DegradedStages)
	fmt.Fprintf(out, "packed chunks:    %d\n", stats.PackedChunks)
	fmt.Fprintf(out, "truncated chunks: %d\n", stats.TruncatedChunks)
	return nil
}
