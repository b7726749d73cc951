package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dativo-io/veil/internal/entity"
)

// TimeoutClassify bounds a single sidecar round trip.
const TimeoutClassify = 10 * time.Second

// SidecarClient calls a NER sidecar's /classify endpoint over HTTP.
// The sidecar wraps whatever statistical model the deployment uses; veil
// only depends on the wire shape below.
type SidecarClient struct {
	url        string
	httpClient *http.Client
}

// NewSidecarClient creates a client pointing at the given base URL
// (e.g. "http://localhost:8001").
func NewSidecarClient(baseURL string) *SidecarClient {
	return &SidecarClient{
		url:        baseURL + "/classify",
		httpClient: &http.Client{Timeout: TimeoutClassify},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Spans []classifySpan `json:"spans"`
}

type classifySpan struct {
	Label string  `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score,omitempty"`
}

// Recognize sends text to the sidecar and returns mapped entity spans.
// Spans with labels outside the closed taxonomy are dropped, as are spans
// whose offsets do not line up with the raw text (a tokenizing sidecar must
// report character offsets, not token offsets).
func (c *SidecarClient) Recognize(ctx context.Context, text string) ([]entity.Span, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshalling classify request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutClassify)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner sidecar call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ner sidecar returned status %d", resp.StatusCode)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding classify response: %w", err)
	}

	spans := make([]entity.Span, 0, len(result.Spans))
	for _, s := range result.Spans {
		t, ok := entity.MapLabel(s.Label)
		if !ok {
			continue
		}
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		score := s.Score
		if score == 0 {
			score = DefaultConfidence
		}
		spans = append(spans, entity.Span{
			Type:       t,
			Start:      s.Start,
			End:        s.End,
			Text:       text[s.Start:s.End],
			Confidence: score,
		})
	}
	return spans, nil
}
