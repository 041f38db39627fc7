package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bankops/mfkb/internal/rank"
	"github.com/bankops/mfkb/internal/retrieval"
)

var (
	flagTopK       int
	flagThreshold  float64
	flagMaxContext int
	flagDiversity  float64
	flagNoRerank   bool
	flagStrategy   string
	flagMetrics    []string
	flagFilters    []string
	flagStrict     bool
	flagJSONOut    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve context chunks for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "maximum chunks returned (0 = config default)")
	queryCmd.Flags().Float64Var(&flagThreshold, "threshold", -1, "minimum similarity score (negative = config default)")
	queryCmd.Flags().IntVar(&flagMaxContext, "max-context", 0, "context budget in characters (0 = config default)")
	queryCmd.Flags().Float64Var(&flagDiversity, "diversity", -1, "diversity factor 0-1 (negative = config default)")
	queryCmd.Flags().BoolVar(&flagNoRerank, "no-rerank", false, "disable the reranking stage")
	queryCmd.Flags().StringVar(&flagStrategy, "strategy", "", "weighting strategy (uniform, cosine_heavy, adaptive, best)")
	queryCmd.Flags().StringSliceVar(&flagMetrics, "metrics", nil, "similarity metrics (cosine, euclidean, manhattan, dot_product)")
	queryCmd.Flags().StringSliceVar(&flagFilters, "filter", nil, "metadata filter key=value, repeatable")
	queryCmd.Flags().BoolVar(&flagStrict, "strict", false, "fail instead of degrading when a refinement stage breaks")
	queryCmd.Flags().BoolVar(&flagJSONOut, "json", false, "print results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts, err := queryOptions()
	if err != nil {
		return err
	}

	chunks, err := rt.engine.Retrieve(ctx, args[0], opts...)
	if err != nil {
		return err
	}

	if flagJSONOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}

	if len(chunks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no matching context")
		return nil
	}
	for i, c := range chunks {
		marker := ""
		if c.Truncated {
			marker = " (truncated)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "--- %d. %s score=%.3f%s\n%s\n",
			i+1, c.ID, c.Score, marker, c.Content)
	}
	return nil
}

// queryOptions maps flags onto retrieval options, leaving unset flags to
// the config defaults.
func queryOptions() ([]retrieval.Option, error) {
	var opts []retrieval.Option
	if flagTopK > 0 {
		opts = append(opts, retrieval.WithTopK(flagTopK))
	}
	if flagThreshold >= 0 {
		opts = append(opts, retrieval.WithSimilarityThreshold(flagThreshold))
	}
	if flagMaxContext > 0 {
		opts = append(opts, retrieval.WithMaxContextLength(flagMaxContext))
	}
	if flagDiversity >= 0 {
		opts = append(opts, retrieval.WithDiversityFactor(flagDiversity))
	}
	if flagNoRerank {
		opts = append(opts, retrieval.WithRerank(false))
	}
	if flagStrategy != "" {
		opts = append(opts, retrieval.WithStrategy(rank.Strategy(flagStrategy)))
	}
	if len(flagMetrics) > 0 {
		metrics := make([]rank.Metric, len(flagMetrics))
		for i, m := range flagMetrics {
			metrics[i] = rank.Metric(m)
		}
		opts = append(opts, retrieval.WithMetrics(metrics...))
	}
	if len(flagFilters) > 0 {
		filters := make(map[string]string, len(flagFilters))
		for _, f := range flagFilters {
			key, value, ok := strings.Cut(f, "=")
			if !ok {
				return nil, fmt.Errorf("invalid filter %q, want key=value", f)
			}
			filters[key] = value
		}
		opts = append(opts, retrieval.WithFilters(filters))
	}
	if flagStrict {
		opts = append(opts, retrieval.WithStrict())
	}
	return opts, nil
}
