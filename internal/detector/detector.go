// Package detector orchestrates the rule-based pattern library and the
// external statistical recognizer over a single document, merging their
// candidate spans into one ordered, non-overlapping span list.
package detector

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	veilotel "github.com/dativo-io/veil/internal/otel"

	"github.com/dativo-io/veil/internal/classifier"
	"github.com/dativo-io/veil/internal/entity"
	"github.com/dativo-io/veil/internal/recognizer"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/detector")

// Detector runs both recognizer families over the same raw text and
// reconciles their findings. One Detect call owns its SpanSet exclusively.
type Detector struct {
	scanner           *classifier.Scanner
	recognizer        recognizer.Recognizer
	preferStatistical bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithPreferStatistical breaks exact same-start/same-length/same-confidence
// ties in favor of statistical spans. Type is never a tie-break input; this
// only orders candidates that are otherwise indistinguishable.
func WithPreferStatistical(prefer bool) Option {
	return func(d *Detector) { d.preferStatistical = prefer }
}

// New creates a Detector. rec may be nil, in which case detection is
// pattern-only and never degrades.
func New(scanner *classifier.Scanner, rec recognizer.Recognizer, opts ...Option) *Detector {
	d := &Detector{scanner: scanner, recognizer: rec}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// candidate tags a span with its source for tie-breaking.
type candidate struct {
	entity.Span
	statistical bool
}

// Detect locates PII spans in text. The returned set is sorted by start and
// pairwise non-overlapping. The second return value is true when the
// statistical recognizer failed and the result degraded to pattern-only
// findings; detection itself never fails.
func (d *Detector) Detect(ctx context.Context, text string) (entity.SpanSet, bool) {
	ctx, span := tracer.Start(ctx, "detector.detect")
	defer span.End()

	if text == "" {
		return entity.SpanSet{}, false
	}

	var candidates []candidate
	for _, s := range d.scanner.Scan(ctx, text) {
		candidates = append(candidates, candidate{Span: s})
	}

	degraded := false
	if d.recognizer != nil {
		spans, err := d.recognizer.Recognize(ctx, text)
		if err != nil {
			// Degrade gracefully: redact with pattern results alone and
			// surface a warning instead of aborting the document.
			log.Warn().Err(err).Msg("statistical recognizer failed, continuing with pattern results only")
			degraded = true
		}
		for _, s := range spans {
			candidates = append(candidates, candidate{Span: s, statistical: true})
		}
	}

	merged := d.merge(candidates)

	span.SetAttributes(
		attribute.Int("pii.span_count", len(merged)),
		attribute.Bool("pii.recognizer_degraded", degraded),
	)
	return merged, degraded
}

// merge resolves overlaps between candidates from both sources.
// Sort order: start ascending, longer span first, then higher confidence.
// A left-to-right sweep keeps a candidate only if it starts at or after the
// end of the last kept span; overlapping candidates are discarded whole,
// never split or truncated. Spans fully contained in a kept span are thereby
// always dropped regardless of type.
func (d *Detector) merge(candidates []candidate) entity.SpanSet {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if d.preferStatistical && a.statistical != b.statistical {
			return a.statistical
		}
		return false
	})

	merged := entity.SpanSet{}
	lastEnd := 0
	for _, c := range candidates {
		if c.Start < lastEnd {
			continue
		}
		merged = append(merged, c.Span)
		lastEnd = c.End
	}
	return merged
}
