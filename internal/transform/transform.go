// Package transform rewrites a document according to a redaction policy.
// Span offsets were computed against the original text, so replacements are
// spliced right to left: earlier splices never invalidate the stored offsets
// of spans to their left.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dativo-io/veil/internal/entity"
)

// Policy selects how matched spans are rewritten.
type Policy int

// Redaction policies.
const (
	// Remove deletes matched text, leaving a configurable separator
	// (default a single space) to avoid accidental token concatenation.
	Remove Policy = iota
	// Mask replaces matched text with a literal tag derived from the
	// entity type, e.g. "[PERSON]".
	Mask
)

// ErrUnknownMode reports an unrecognized redaction mode string.
var ErrUnknownMode = errors.New("unknown redaction mode")

// ParsePolicy maps a presenter-facing mode string onto a Policy.
// Accepted modes are "redact" and "mask"; anything else is rejected
// immediately, never coerced.
func ParsePolicy(mode string) (Policy, error) {
	switch mode {
	case "redact":
		return Remove, nil
	case "mask":
		return Mask, nil
	default:
		return 0, fmt.Errorf("%w %q (want \"redact\" or \"mask\")", ErrUnknownMode, mode)
	}
}

// String returns the presenter-facing mode name.
func (p Policy) String() string {
	if p == Mask {
		return "mask"
	}
	return "redact"
}

// Options tune replacement behavior.
type Options struct {
	// RemoveReplacement is the text substituted under the Remove policy.
	// Empty string deletes spans outright.
	RemoveReplacement string
}

// DefaultOptions leaves a single space where removed spans were.
func DefaultOptions() Options {
	return Options{RemoveReplacement: " "}
}

// Apply rewrites text by replacing each span per the policy. spans must be
// sorted by start and non-overlapping (the detector's output invariant).
// Output is deterministic for a given span set and policy; leading/trailing
// whitespace produced by removals is trimmed once at the end.
func Apply(text string, spans entity.SpanSet, policy Policy, opts Options) string {
	if len(spans) == 0 {
		return text
	}

	result := []byte(text)
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		var replacement string
		if policy == Mask {
			replacement = s.Type.Tag()
		} else {
			replacement = opts.RemoveReplacement
		}
		result = append(result[:s.Start], append([]byte(replacement), result[s.End:]...)...)
	}

	return strings.TrimSpace(string(result))
}
