// Package classifier implements the rule-based half of PII detection: a
// fixed, ordered library of regex recognizers compiled from embedded YAML,
// scanned over raw document text. Candidates pass hard validation gates
// (Luhn for card numbers, octet range for IPv4) and Presidio-style
// score-based context filtering before being accepted. Overlap resolution
// between candidates is the detector's job, not the scanner's.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	veilotel "github.com/dativo-io/veil/internal/otel"

	"github.com/dativo-io/veil/internal/entity"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/classifier")

const (
	// DefaultMinScore is the Presidio-compatible minimum confidence threshold.
	// Matches below this score are discarded unless boosted by context words.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is the score boost applied when context words are
	// found near a match. Matches Presidio's default context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters to search before and after
	// a match when looking for context words.
	ContextWindowChars = 100

	// DefaultLanguage selects which supported_languages block contributes
	// context words. veil is single-locale.
	DefaultLanguage = "en"
)

// Scanner detects PII in text using configurable regex patterns.
type Scanner struct {
	patterns []Pattern
	minScore float64
}

// Option configures a Scanner via the functional options pattern.
type Option func(*scannerConfig)

type scannerConfig struct {
	patternFile      string
	enabledEntities  []string
	disabledEntities []string
	minScore         float64
	minScoreSet      bool
}

// WithMinScore overrides the default minimum confidence threshold for matches.
// Zero is a valid threshold and disables score filtering entirely.
func WithMinScore(score float64) Option {
	return func(c *scannerConfig) {
		c.minScore = score
		c.minScoreSet = true
	}
}

// WithPatternFile loads additional recognizers from an overlay YAML file.
// If the file does not exist, it is silently skipped.
func WithPatternFile(path string) Option {
	return func(c *scannerConfig) { c.patternFile = path }
}

// WithEnabledEntities sets a whitelist of entity types. When non-empty, only
// recognizers with a matching supported_entity will be active.
func WithEnabledEntities(entities []string) Option {
	return func(c *scannerConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity types to exclude.
func WithDisabledEntities(entities []string) Option {
	return func(c *scannerConfig) { c.disabledEntities = entities }
}

// NewScanner creates a PII scanner. Without options it uses the embedded
// defaults. Options layer overlay recognizers and filters on top.
func NewScanner(opts ...Option) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var overlay []*RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading overlay pattern file: %w", err)
		}
		if rf != nil {
			overlay = toPtrSlice(rf.Recognizers)
		}
	}

	merged := MergeRecognizers(toPtrSlice(defaults), overlay)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := CompilePatterns(merged, DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	minScore := DefaultMinScore
	if cfg.minScoreSet {
		minScore = cfg.minScore
	}

	return &Scanner{patterns: compiled, minScore: minScore}, nil
}

// MustNewScanner is like NewScanner but panics on error. Useful for
// zero-config startup where the embedded defaults are expected to always
// compile.
func MustNewScanner(opts ...Option) *Scanner {
	s, err := NewScanner(opts...)
	if err != nil {
		panic(fmt.Sprintf("classifier.NewScanner: %v", err))
	}
	return s
}

// Scan analyzes text for PII and returns candidate spans in document
// coordinates. Candidates from different patterns may overlap; the detector
// reconciles them. Each match goes through hard validation gates and then
// score-based context filtering before being accepted.
func (s *Scanner) Scan(ctx context.Context, text string) entity.SpanSet {
	_, span := tracer.Start(ctx, "classifier.scan")
	defer span.End()

	var candidates entity.SpanSet
	for _, pattern := range s.patterns {
		matches := pattern.Pattern.FindAllStringIndex(text, -1)
		for _, match := range matches {
			value := text[match[0]:match[1]]

			if pattern.ValidateLuhn && !luhnValid(stripNonDigits(value)) {
				continue
			}
			if pattern.ValidateOctets && !validIPv4Octets(value) {
				continue
			}

			confidence := enhanceScoreWithContext(text, match[0], pattern.Score, pattern.ContextWords)
			if confidence < s.minScore {
				continue
			}

			candidates = append(candidates, entity.Span{
				Type:       pattern.Type,
				Start:      match[0],
				End:        match[1],
				Text:       value,
				Confidence: confidence,
			})
		}
	}

	span.SetAttributes(attribute.Int("pii.candidate_count", len(candidates)))
	return candidates
}

// enhanceScoreWithContext boosts a match's base score if context words are
// found within +/- ContextWindowChars characters of the match position. This
// mirrors Presidio's LemmaContextAwareEnhancer with a fixed
// context_similarity_factor. The boosted score is capped at 1.0.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := position - ContextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + ContextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			boosted := baseScore + ContextSimilarityFactor
			if boosted > 1.0 {
				boosted = 1.0
			}
			return boosted
		}
	}
	return baseScore
}
