package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/evaluator"
	"github.com/dativo-io/veil/internal/loader"
	"github.com/dativo-io/veil/internal/report"
	"github.com/dativo-io/veil/internal/transform"
)

var (
	batchMode     string
	batchWorkers  int
	batchOut      string
	batchExpected string
	batchStore    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dataset>...",
	Short: "Evaluate redaction over a test dataset",
	Long: `Loads one or more datasets (.txt, .jsonl, .zip, .html), runs the full
detection and redaction pipeline over every document, and prints aggregate
accuracy metrics. Results can be exported as CSV and persisted to the local
runs store for later comparison.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchMode, "mode", "redact", "redaction mode (redact, mask)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "worker pool size (default from config)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "write results CSV to this path (\"-\" for stdout)")
	batchCmd.Flags().StringVar(&batchExpected, "expected", "", "JSONL file mapping document ids to expected reference texts")
	batchCmd.Flags().BoolVar(&batchStore, "store", false, "persist the run to the local runs database")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	policy, err := transform.ParsePolicy(batchMode)
	if err != nil {
		return err
	}

	docs, loadFailures, err := loader.LoadAll(args)
	if err != nil {
		return err
	}
	if len(docs) == 0 && len(loadFailures) == 0 {
		return fmt.Errorf("no documents found in %v", args)
	}
	log.Info().Int("documents", len(docs)).Int("decode_failures", len(loadFailures)).Msg("dataset loaded")

	expected, err := loadExpected(batchExpected)
	if err != nil {
		return err
	}

	eval, err := newEvaluator(cfg, batchWorkers)
	if err != nil {
		return err
	}

	results, failures, agg := eval.EvaluateBatch(cmd.Context(), docs, policy, expected)

	// Decode failures from ingestion join evaluation failures in the
	// report so nothing is silently dropped.
	for _, lf := range loadFailures {
		failures = append(failures, evaluator.Failure{
			DocumentID: lf.Source,
			Kind:       evaluator.FailureDecode,
			Detail:     lf.Detail,
		})
	}
	agg.Failures = len(failures)

	if batchOut != "" {
		if err := writeCSVOut(batchOut, results, failures); err != nil {
			return err
		}
	}

	if batchStore {
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		store, err := report.NewStore(cfg.RunsDBPath())
		if err != nil {
			return err
		}
		defer store.Close()
		runID, err := store.SaveRun(cmd.Context(), policy.String(), results, agg)
		if err != nil {
			return fmt.Errorf("persisting run: %w", err)
		}
		log.Info().Str("run_id", runID).Msg("run persisted")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch evaluation (mode %s)\n", policy)
	fmt.Fprintf(out, "  Documents evaluated:   %d\n", agg.Documents)
	fmt.Fprintf(out, "  Failures:              %d\n", agg.Failures)
	fmt.Fprintf(out, "  Mean entities found:   %.2f\n", agg.MeanEntityCount)
	fmt.Fprintf(out, "  Mean similarity:       %.4f\n", agg.MeanSimilarity)
	fmt.Fprintf(out, "  Best similarity:       %.4f\n", agg.MaxSimilarity)
	return nil
}

// loadExpected reads a JSONL reference file into an id → expected text map.
func loadExpected(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	docs, failures, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading expected references: %w", err)
	}
	for _, f := range failures {
		log.Warn().Str("source", f.Source).Int("line", f.Line).Str("detail", f.Detail).Msg("skipping malformed expected record")
	}
	expected := make(map[string]string, len(docs))
	for _, d := range docs {
		expected[d.ID] = d.Text
	}
	return expected, nil
}

func writeCSVOut(path string, results []evaluator.EvaluationResult, failures []evaluator.Failure) error {
	if path == "-" {
		return report.WriteCSV(os.Stdout, results, failures)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := report.WriteCSV(f, results, failures); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("results CSV written")
	return nil
}
