// Package evaluator composes the detector, transformer, and scorer into the
// operations exposed to presenters: single-document processing and batch
// evaluation against reference texts.
package evaluator

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	veilotel "github.com/dativo-io/veil/internal/otel"

	"github.com/dativo-io/veil/internal/detector"
	"github.com/dativo-io/veil/internal/entity"
	"github.com/dativo-io/veil/internal/score"
	"github.com/dativo-io/veil/internal/transform"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/evaluator")

// ErrInvalidInput reports a missing or empty document where text is mandatory.
var ErrInvalidInput = errors.New("document text is empty")

// PreviewLength caps the redacted preview carried in an EvaluationResult.
const PreviewLength = 200

// DefaultWorkers is the batch worker pool size when not configured.
const DefaultWorkers = 4

// Document is one (id, text) pair of a batch input.
type Document struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// EntityRecord is one detected entity as reported to the presenter, with
// offsets into the original text.
type EntityRecord struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EvaluationResult is the immutable per-document outcome of an evaluation.
type EvaluationResult struct {
	DocumentID         string  `json:"document_id"`
	OriginalLength     int     `json:"original_length"`
	EntityCount        int     `json:"entity_count"`
	EditDistance       int     `json:"edit_distance"`
	SimilarityScore    float64 `json:"similarity_score"`
	RedactedPreview    string  `json:"redacted_preview"`
	RecognizerDegraded bool    `json:"recognizer_degraded,omitempty"`
}

// Failure records a document that could not be evaluated. Failed slots are
// reported, never silently dropped.
type Failure struct {
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
}

// Failure kinds surfaced to the presenter/reporter boundary.
const (
	FailureInvalidInput = "invalid_input"
	FailureCanceled     = "canceled"
	FailureDecode       = "decode_failure"
)

// Evaluator owns the detection pipeline instance: constructed once at
// startup, reused read-only thereafter, no teardown required.
type Evaluator struct {
	detector      *detector.Detector
	workers       int
	transformOpts transform.Options
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWorkers sets the batch worker pool size.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRemoveReplacement sets the text substituted for spans under the
// redact policy (default a single space).
func WithRemoveReplacement(s string) Option {
	return func(e *Evaluator) { e.transformOpts.RemoveReplacement = s }
}

// New creates an Evaluator around a detector.
func New(det *detector.Detector, opts ...Option) *Evaluator {
	e := &Evaluator{
		detector:      det,
		workers:       DefaultWorkers,
		transformOpts: transform.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process detects and rewrites PII in a single text. mode is "redact" or
// "mask"; anything else is rejected with transform.ErrUnknownMode. The
// entity list is ordered by start offset into the original text, one record
// per occurrence.
func (e *Evaluator) Process(ctx context.Context, text, mode string) (string, []EntityRecord, error) {
	ctx, span := tracer.Start(ctx, "evaluator.process")
	defer span.End()

	policy, err := transform.ParsePolicy(mode)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(text) == "" {
		return "", nil, ErrInvalidInput
	}

	spans, _ := e.detector.Detect(ctx, text)
	redacted := transform.Apply(text, spans, policy, e.transformOpts)

	records := make([]EntityRecord, len(spans))
	for i, s := range spans {
		records[i] = EntityRecord{
			Type:  string(s.Type),
			Text:  s.Text,
			Start: s.Start,
			End:   s.End,
		}
	}

	span.SetAttributes(
		attribute.Int("pii.entity_count", len(records)),
		attribute.String("pii.mode", policy.String()),
	)
	return redacted, records, nil
}

// Evaluate runs the full pipeline over one document and scores the result.
// When expected is non-empty the transformed text is compared against it;
// otherwise against the original text, so the score measures how much was
// changed.
func (e *Evaluator) Evaluate(ctx context.Context, id, text, expected string, policy transform.Policy) (EvaluationResult, error) {
	ctx, span := tracer.Start(ctx, "evaluator.evaluate")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return EvaluationResult{}, ErrInvalidInput
	}

	spans, degraded := e.detector.Detect(ctx, text)
	redacted := transform.Apply(text, spans, policy, e.transformOpts)

	reference := expected
	if reference == "" {
		reference = text
	}
	distance := score.Distance(reference, redacted)

	return EvaluationResult{
		DocumentID:         id,
		OriginalLength:     len(text),
		EntityCount:        len(spans),
		EditDistance:       distance,
		SimilarityScore:    score.Similarity(reference, redacted),
		RedactedPreview:    preview(redacted),
		RecognizerDegraded: degraded,
	}, nil
}

// SpanSet exposes raw detection for presenters that render annotated text.
func (e *Evaluator) SpanSet(ctx context.Context, text string) (entity.SpanSet, bool) {
	return e.detector.Detect(ctx, text)
}

// preview truncates on a rune boundary so multi-byte text never leaks
// invalid UTF-8 into reports.
func preview(s string) string {
	if len(s) <= PreviewLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= PreviewLength {
		return s
	}
	return string(runes[:PreviewLength]) + "..."
}
