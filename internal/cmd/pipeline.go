package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/classifier"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/detector"
	"github.com/dativo-io/veil/internal/evaluator"
	"github.com/dativo-io/veil/internal/recognizer"
)

// newEvaluator wires the full pipeline from operator config: pattern scanner,
// optional NER sidecar, detector, evaluator. Built once per command and
// reused read-only.
func newEvaluator(cfg *config.Config, workers int) (*evaluator.Evaluator, error) {
	scanner, err := classifier.NewScanner(
		classifier.WithMinScore(cfg.MinScore),
		classifier.WithPatternFile(cfg.PatternFile),
	)
	if err != nil {
		return nil, fmt.Errorf("building pattern scanner: %w", err)
	}

	var rec recognizer.Recognizer
	if cfg.NERBaseURL != "" {
		rec = recognizer.NewSidecarClient(cfg.NERBaseURL)
	} else {
		log.Debug().Msg("NER sidecar disabled, detection is pattern-only")
	}

	if workers <= 0 {
		workers = cfg.BatchWorkers
	}

	return evaluator.New(
		detector.New(scanner, rec),
		evaluator.WithWorkers(workers),
		evaluator.WithRemoveReplacement(cfg.RemoveReplacement),
	), nil
}
