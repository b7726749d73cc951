package transform

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/entity"
)

func span(t entity.Type, start, end int, doc string) entity.Span {
	return entity.Span{Type: t, Start: start, End: end, Text: doc[start:end], Confidence: 0.9}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		mode    string
		want    Policy
		wantErr bool
	}{
		{mode: "redact", want: Remove},
		{mode: "mask", want: Mask},
		{mode: "highlight", wantErr: true},
		{mode: "", wantErr: true},
		{mode: "MASK", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.mode, func(t *testing.T) {
			got, err := ParsePolicy(tt.mode)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyMask(t *testing.T) {
	doc := "Mail bob@example.com or call 5551234567 today"
	spans := entity.SpanSet{
		span(entity.Email, 5, 20, doc),
		span(entity.Phone, 29, 39, doc),
	}

	got := Apply(doc, spans, Mask, DefaultOptions())
	assert.Equal(t, "Mail [EMAIL] or call [PHONE] today", got)
}

func TestApplyRemove(t *testing.T) {
	doc := "Mail bob@example.com today"
	spans := entity.SpanSet{span(entity.Email, 5, 20, doc)}

	tests := []struct {
		name string
		opts Options
		want string
	}{
		{name: "default single space", opts: DefaultOptions(), want: "Mail   today"},
		{name: "delete outright", opts: Options{RemoveReplacement: ""}, want: "Mail  today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Apply(doc, spans, Remove, tt.opts))
		})
	}
}

func TestApplyRemoveNeverGrowsText(t *testing.T) {
	doc := "id 123456789 and ip 10.0.0.1 end"
	spans := entity.SpanSet{
		span(entity.IDNumber, 3, 12, doc),
		span(entity.IPAddress, 20, 28, doc),
	}
	got := Apply(doc, spans, Remove, DefaultOptions())
	assert.LessOrEqual(t, len(got), len(doc))
}

// Replacements differ in length from the original spans, so applying them
// right to left must keep every stored offset valid.
func TestApplyOffsetsSurviveLengthChanges(t *testing.T) {
	doc := "a@b.co x a@b.co x a@b.co"
	spans := entity.SpanSet{
		span(entity.Email, 0, 6, doc),
		span(entity.Email, 9, 15, doc),
		span(entity.Email, 18, 24, doc),
	}
	got := Apply(doc, spans, Mask, DefaultOptions())
	assert.Equal(t, "[EMAIL] x [EMAIL] x [EMAIL]", got)
}

func TestApplyTrimsEdges(t *testing.T) {
	doc := "bob@example.com wrote this"
	spans := entity.SpanSet{span(entity.Email, 0, 15, doc)}
	got := Apply(doc, spans, Remove, DefaultOptions())
	assert.Equal(t, "wrote this", got)
}

func TestApplyDeterministic(t *testing.T) {
	doc := "call 5551234567 or 5559876543"
	spans := entity.SpanSet{
		span(entity.Phone, 5, 15, doc),
		span(entity.Phone, 19, 29, doc),
	}
	first := Apply(doc, spans, Mask, DefaultOptions())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Apply(doc, spans, Mask, DefaultOptions()))
	}
}

func TestApplyEmptySpanSet(t *testing.T) {
	assert.Equal(t, "unchanged", Apply("unchanged", nil, Mask, DefaultOptions()))
}

var maskTagRe = regexp.MustCompile(`\[[A-Z_]+\]`)

func TestMaskTagsMatchTagGrammar(t *testing.T) {
	doc := "x 1234567890 y 10.0.0.1 z"
	spans := entity.SpanSet{
		span(entity.Phone, 2, 12, doc),
		span(entity.IPAddress, 15, 23, doc),
	}
	got := Apply(doc, spans, Mask, DefaultOptions())

	tags := maskTagRe.FindAllString(got, -1)
	assert.Len(t, tags, 2)
	want := map[string]bool{}
	for _, s := range spans {
		want[s.Type.Tag()] = true
	}
	for _, tag := range tags {
		assert.True(t, want[tag], "tag %s must correspond to a span type", tag)
	}
}

// Masking is not idempotent: tags are literal text, so re-running the
// pipeline over already-masked output is out of scope and carries no
// stability guarantee. This test pins the documented behavior: the first
// pass is authoritative and the output is plain text like any other.
func TestMaskNotIdempotentByDesign(t *testing.T) {
	doc := "write to a@b.co now"
	spans := entity.SpanSet{span(entity.Email, 9, 15, doc)}
	masked := Apply(doc, spans, Mask, DefaultOptions())
	assert.Equal(t, "write to [EMAIL] now", masked)
	// No span offsets from doc are meaningful in masked; a second pass would
	// need fresh detection over the new text.
	assert.NotEqual(t, doc, masked)
}
