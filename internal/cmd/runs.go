package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/report"
)

var (
	runsLimit int
	runsShow  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored batch evaluation runs",
	Long: `Lists past batch evaluation runs from the local runs database, newest
first. With --show, prints the per-document results of one run instead.`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
	runsCmd.Flags().StringVar(&runsShow, "show", "", "show per-document results for the given run id")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if _, err := os.Stat(cfg.RunsDBPath()); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs.")
		return nil
	}

	store, err := report.NewStore(cfg.RunsDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	if runsShow != "" {
		return showRun(cmd, store, runsShow)
	}

	runs, err := store.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %s  mode=%-6s docs=%-4d failures=%-3d mean_sim=%.4f max_sim=%.4f\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Mode,
			r.Documents, r.Failures, r.MeanSimilarity, r.MaxSimilarity)
	}
	return nil
}

// showRun prints the stored per-document results of one run, in their
// original input order.
func showRun(cmd *cobra.Command, store *report.Store, runID string) error {
	results, err := store.GetRunResults(cmd.Context(), runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "No results stored for run %s.\n", runID)
		return nil
	}
	for _, r := range results {
		degraded := ""
		if r.RecognizerDegraded {
			degraded = "  [degraded]"
		}
		fmt.Fprintf(out, "%-20s len=%-5d entities=%-3d distance=%-5d similarity=%.4f%s\n",
			r.DocumentID, r.OriginalLength, r.EntityCount, r.EditDistance, r.SimilarityScore, degraded)
		fmt.Fprintf(out, "    %s\n", r.RedactedPreview)
	}
	return nil
}
