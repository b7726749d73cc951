// Package recognizer consumes an external statistical named-entity
// recognizer behind a narrow interface. Any concrete NER engine is a
// swappable implementation; veil ships an HTTP client for a sidecar exposing
// POST /classify. Native labels are mapped onto the closed entity taxonomy
// at ingestion; unmapped labels are dropped.
package recognizer

import (
	"context"
	"sync"

	"github.com/dativo-io/veil/internal/entity"
)

// DefaultConfidence is assigned to statistical spans whose engine reports no
// score. Kept above the rule-based phone score (0.8) so a confirmed NER
// match wins confidence tie-breaks against heuristic patterns.
const DefaultConfidence = 0.85

// Recognizer locates semantically-typed entity spans in free text.
// Offsets are raw character offsets into text. Implementations are expected
// to be stateless and reentrant from the caller's perspective; wrap engines
// that are not with Serialized.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]entity.Span, error)
}

// Func adapts a plain function to the Recognizer interface.
type Func func(ctx context.Context, text string) ([]entity.Span, error)

// Recognize implements Recognizer.
func (f Func) Recognize(ctx context.Context, text string) ([]entity.Span, error) {
	return f(ctx, text)
}

// Serialized wraps a non-thread-safe Recognizer so concurrent batch workers
// funnel through it one call at a time while the regex and transform stages
// stay parallel.
type Serialized struct {
	mu    sync.Mutex
	inner Recognizer
}

// Serialize wraps r so that only one Recognize call runs at a time.
func Serialize(r Recognizer) *Serialized {
	return &Serialized{inner: r}
}

// Recognize implements Recognizer.
func (s *Serialized) Recognize(ctx context.Context, text string) ([]entity.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Recognize(ctx, text)
}
