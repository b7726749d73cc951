// Package report exports batch evaluation results: tabular CSV for
// download/inspection and a SQLite-backed store for keeping past runs.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/dativo-io/veil/internal/evaluator"
)

// csvHeader matches the evaluation dashboard export format.
var csvHeader = []string{
	"Document",
	"Length",
	"Entities Found",
	"Levenshtein Distance",
	"Similarity Score",
	"Redacted Preview",
}

// WriteCSV writes one row per evaluated document, in result order, followed
// by one row per failure with the error kind in the preview column. No
// failure is dropped from the export.
func WriteCSV(w io.Writer, results []evaluator.EvaluationResult, failures []evaluator.Failure) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, r := range results {
		row := []string{
			r.DocumentID,
			strconv.Itoa(r.OriginalLength),
			strconv.Itoa(r.EntityCount),
			strconv.Itoa(r.EditDistance),
			strconv.FormatFloat(r.SimilarityScore, 'f', 4, 64),
			r.RedactedPreview,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for %s: %w", r.DocumentID, err)
		}
	}

	for _, f := range failures {
		row := []string{f.DocumentID, "", "", "", "", fmt.Sprintf("FAILED (%s): %s", f.Kind, f.Detail)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV failure row for %s: %w", f.DocumentID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
