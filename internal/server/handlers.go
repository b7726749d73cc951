package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/evaluator"
	"github.com/dativo-io/veil/internal/score"
	"github.com/dativo-io/veil/internal/transform"
)

type processRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type processResponse struct {
	Redacted   string                   `json:"redacted"`
	Entities   []evaluator.EntityRecord `json:"entities"`
	Distance   int                      `json:"levenshtein_distance"`
	Similarity float64                  `json:"similarity_score"`
}

type batchRequest struct {
	Documents []evaluator.Document `json:"documents"`
	Mode      string               `json:"mode"`
	Expected  map[string]string    `json:"expected,omitempty"`
}

type batchResponse struct {
	Results   []evaluator.EvaluationResult `json:"results"`
	Failures  []evaluator.Failure          `json:"failures"`
	Aggregate evaluator.Aggregate          `json:"aggregate"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	redacted, entities, err := s.eval.Process(r.Context(), req.Text, req.Mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, evaluator.ErrInvalidInput) || errors.Is(err, transform.ErrUnknownMode) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Redacted:   redacted,
		Entities:   entities,
		Distance:   score.Distance(req.Text, redacted),
		Similarity: score.Similarity(req.Text, redacted),
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	policy, err := transform.ParsePolicy(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "no documents provided")
		return
	}

	results, failures, agg := s.eval.EvaluateBatch(r.Context(), req.Documents, policy, req.Expected)
	writeJSON(w, http.StatusOK, batchResponse{
		Results:   results,
		Failures:  failures,
		Aggregate: agg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
