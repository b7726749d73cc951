package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	veilotel "github.com/dativo-io/veil/internal/otel"

	"github.com/dativo-io/veil/internal/evaluator"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/report")

// Store persists batch evaluation runs in SQLite so past runs can be
// compared without re-evaluating.
type Store struct {
	db *sql.DB
}

// Run is the stored summary of one batch evaluation.
type Run struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Mode            string    `json:"mode"`
	Documents       int       `json:"documents"`
	Failures        int       `json:"failures"`
	MeanEntityCount float64   `json:"mean_entity_count"`
	MeanSimilarity  float64   `json:"mean_similarity"`
	MaxSimilarity   float64   `json:"max_similarity"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	mode TEXT NOT NULL,
	documents INTEGER NOT NULL,
	failures INTEGER NOT NULL,
	mean_entity_count REAL NOT NULL,
	mean_similarity REAL NOT NULL,
	max_similarity REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS run_results (
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	document_id TEXT NOT NULL,
	original_length INTEGER NOT NULL,
	entity_count INTEGER NOT NULL,
	edit_distance INTEGER NOT NULL,
	similarity REAL NOT NULL,
	preview TEXT NOT NULL,
	degraded INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// NewStore opens (creating if needed) the runs database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening runs database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists one batch run and its ordered results in a single
// transaction, returning the generated run id.
func (s *Store) SaveRun(ctx context.Context, mode string, results []evaluator.EvaluationResult, agg evaluator.Aggregate) (string, error) {
	ctx, span := tracer.Start(ctx, "report.save_run")
	defer span.End()

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run.id", runID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, mode, documents, failures, mean_entity_count, mean_similarity, max_similarity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UTC(), mode, agg.Documents, agg.Failures,
		agg.MeanEntityCount, agg.MeanSimilarity, agg.MaxSimilarity,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_results (run_id, position, document_id, original_length, entity_count, edit_distance, similarity, preview, degraded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing result insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		if _, err := stmt.ExecContext(ctx, runID, i, r.DocumentID, r.OriginalLength,
			r.EntityCount, r.EditDistance, r.SimilarityScore, r.RedactedPreview, r.RecognizerDegraded); err != nil {
			return "", fmt.Errorf("inserting result for %s: %w", r.DocumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, mode, documents, failures, mean_entity_count, mean_similarity, max_similarity
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Mode, &r.Documents, &r.Failures,
			&r.MeanEntityCount, &r.MeanSimilarity, &r.MaxSimilarity); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunResults returns the stored per-document results for a run, in their
// original input order.
func (s *Store) GetRunResults(ctx context.Context, runID string) ([]evaluator.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, original_length, entity_count, edit_distance, similarity, preview, degraded
		 FROM run_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []evaluator.EvaluationResult
	for rows.Next() {
		var r evaluator.EvaluationResult
		if err := rows.Scan(&r.DocumentID, &r.OriginalLength, &r.EntityCount,
			&r.EditDistance, &r.SimilarityScore, &r.RedactedPreview, &r.RecognizerDegraded); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
