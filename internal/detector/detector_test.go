package detector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/classifier"
	"github.com/dativo-io/veil/internal/entity"
	"github.com/dativo-io/veil/internal/recognizer"
)

// stubRecognizer returns fixed spans for every occurrence of the given
// surface forms, mimicking a statistical engine reporting character offsets.
func stubRecognizer(types map[string]entity.Type, confidence float64) recognizer.Recognizer {
	return recognizer.Func(func(ctx context.Context, text string) ([]entity.Span, error) {
		var spans []entity.Span
		for surface, typ := range types {
			for at := 0; ; {
				idx := strings.Index(text[at:], surface)
				if idx < 0 {
					break
				}
				start := at + idx
				spans = append(spans, entity.Span{
					Type:       typ,
					Start:      start,
					End:        start + len(surface),
					Text:       surface,
					Confidence: confidence,
				})
				at = start + len(surface)
			}
		}
		return spans, nil
	})
}

func failingRecognizer() recognizer.Recognizer {
	return recognizer.Func(func(ctx context.Context, text string) ([]entity.Span, error) {
		return nil, errors.New("sidecar unreachable")
	})
}

func TestDetectEmptyDocument(t *testing.T) {
	det := New(classifier.MustNewScanner(), nil)
	spans, degraded := det.Detect(context.Background(), "")
	assert.Empty(t, spans)
	assert.False(t, degraded)
}

func TestDetectMergesBothSources(t *testing.T) {
	text := "Contact John at john@x.com, 555-123-4567"
	rec := stubRecognizer(map[string]entity.Type{"John": entity.Person}, 0.85)
	det := New(classifier.MustNewScanner(), rec)

	spans, degraded := det.Detect(context.Background(), text)
	require.False(t, degraded)
	require.True(t, spans.Sorted())
	require.True(t, spans.NonOverlapping())

	byType := map[entity.Type]entity.Span{}
	for _, s := range spans {
		require.NoError(t, s.Validate(text))
		byType[s.Type] = s
	}
	require.Len(t, spans, 3)
	assert.Equal(t, "John", byType[entity.Person].Text)
	assert.Equal(t, "john@x.com", byType[entity.Email].Text)
	assert.Equal(t, "555-123-4567", byType[entity.Phone].Text)
}

func TestDetectInvariantsUnderSyntheticOverlap(t *testing.T) {
	// The recognizer reports every word plus several deliberately
	// overlapping fragments; the merged output must still be sorted and
	// pairwise non-overlapping.
	text := "Anna Anna Banana and Anna Banana again"
	rec := stubRecognizer(map[string]entity.Type{
		"Anna":        entity.Person,
		"Anna Banana": entity.Person,
		"Banana":      entity.Organization,
		"na Ba":       entity.Other,
	}, 0.85)
	det := New(classifier.MustNewScanner(), rec)

	spans, _ := det.Detect(context.Background(), text)
	require.NotEmpty(t, spans)
	assert.True(t, spans.Sorted())
	assert.True(t, spans.NonOverlapping())
	for _, s := range spans {
		require.NoError(t, s.Validate(text))
	}
}

func TestDetectLongerSpanWinsAtSameStart(t *testing.T) {
	text := "met Anna Banana there"
	rec := stubRecognizer(map[string]entity.Type{
		"Anna":        entity.Person,
		"Anna Banana": entity.Person,
	}, 0.85)
	det := New(classifier.MustNewScanner(), rec)

	spans, _ := det.Detect(context.Background(), text)
	require.Len(t, spans, 1)
	assert.Equal(t, "Anna Banana", spans[0].Text)
}

func TestDetectContainedSpanDiscardedRegardlessOfType(t *testing.T) {
	// "Banana" sits inside "Anna Banana"; type mismatch must not rescue it.
	text := "met Anna Banana there"
	rec := stubRecognizer(map[string]entity.Type{
		"Anna Banana": entity.Person,
		"Banana":      entity.Organization,
	}, 0.85)
	det := New(classifier.MustNewScanner(), rec)

	spans, _ := det.Detect(context.Background(), text)
	require.Len(t, spans, 1)
	assert.Equal(t, entity.Person, spans[0].Type)
}

func TestDetectDottedQuadResolvesToIP(t *testing.T) {
	// The dotted quad yields both an IP candidate and a shorter
	// dot-separated phone candidate starting at the same offset; the sweep
	// must keep exactly the IP span.
	text := "server at 192.168.1.100 is up"
	det := New(classifier.MustNewScanner(), nil)

	spans, _ := det.Detect(context.Background(), text)
	require.Len(t, spans, 1)
	assert.Equal(t, entity.IPAddress, spans[0].Type)
	assert.Equal(t, "192.168.1.100", spans[0].Text)
}

func TestDetectEachOccurrenceSeparately(t *testing.T) {
	// A name mentioned twice must yield two distinct spans at their own
	// offsets, never a single whole-document substitution.
	text := "Smith called. Later Smith wrote back."
	rec := stubRecognizer(map[string]entity.Type{"Smith": entity.Person}, 0.85)
	det := New(classifier.MustNewScanner(), rec)

	spans, _ := det.Detect(context.Background(), text)
	require.Len(t, spans, 2)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, strings.LastIndex(text, "Smith"), spans[1].Start)
	for _, s := range spans {
		assert.Equal(t, "Smith", s.Text)
		assert.Equal(t, entity.Person, s.Type)
	}
}

func TestDetectDegradesOnRecognizerFailure(t *testing.T) {
	text := "mail me at user@example.com please"
	det := New(classifier.MustNewScanner(), failingRecognizer())

	spans, degraded := det.Detect(context.Background(), text)
	assert.True(t, degraded, "recognizer failure must be surfaced as a warning")
	require.Len(t, spans, 1, "pattern results must survive the failure")
	assert.Equal(t, entity.Email, spans[0].Type)
}

func TestDetectPreferStatisticalTieBreak(t *testing.T) {
	// Same start, same length, same confidence: only then may the source
	// preference decide.
	text := "on 2025-12-25 maybe"
	start := strings.Index(text, "2025")
	tieRec := recognizer.Func(func(ctx context.Context, _ string) ([]entity.Span, error) {
		return []entity.Span{{
			Type: entity.Date, Start: start, End: start + 10, Text: "2025-12-25", Confidence: 0.85,
		}}, nil
	})

	det := New(classifier.MustNewScanner(), tieRec, WithPreferStatistical(true))
	spans, _ := det.Detect(context.Background(), text)
	require.Len(t, spans, 1)
	assert.Equal(t, entity.Date, spans[0].Type)
}
