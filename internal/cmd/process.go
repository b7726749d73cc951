package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/score"
)

var (
	processMode     string
	processExpected string
)

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Detect and redact PII in a single text",
	Long: `Reads text from a file (or stdin when no file or "-" is given), detects
PII, and prints the redacted or masked output, the detected entity table,
and the Levenshtein distance/similarity against the original (or against
--expected when provided).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processMode, "mode", "redact", "redaction mode (redact, mask)")
	processCmd.Flags().StringVar(&processExpected, "expected", "", "reference file to score the output against")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	text, err := readInput(args)
	if err != nil {
		return err
	}

	eval, err := newEvaluator(cfg, 1)
	if err != nil {
		return err
	}

	redacted, entities, err := eval.Process(cmd.Context(), text, processMode)
	if err != nil {
		return err
	}

	reference := text
	if processExpected != "" {
		ref, err := os.ReadFile(processExpected)
		if err != nil {
			return fmt.Errorf("reading expected reference: %w", err)
		}
		reference = string(ref)
	}
	distance := score.Distance(reference, redacted)
	similarity := score.Similarity(reference, redacted)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, redacted)
	fmt.Fprintln(out)
	if len(entities) == 0 {
		fmt.Fprintln(out, "No entities detected.")
	} else {
		fmt.Fprintf(out, "Detected entities (%d):\n", len(entities))
		for _, e := range entities {
			fmt.Fprintf(out, "  %-14s %q [%d:%d]\n", e.Type, e.Text, e.Start, e.End)
		}
	}
	fmt.Fprintf(out, "Levenshtein distance:  %d\n", distance)
	fmt.Fprintf(out, "Similarity score:      %.4f\n", similarity)
	return nil
}

func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}
