package evaluator

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/transform"
)

// Aggregate summarizes a batch run. It is computed by a single deterministic
// reduction over the completed result collection, never by concurrent
// mutation of shared counters, and covers successful documents only.
type Aggregate struct {
	Documents       int     `json:"documents"`
	Failures        int     `json:"failures"`
	MeanEntityCount float64 `json:"mean_entity_count"`
	MeanSimilarity  float64 `json:"mean_similarity"`
	MaxSimilarity   float64 `json:"max_similarity"`
}

// slot holds the outcome for one input position. Each worker writes only its
// own slots, so no cross-document state is shared during the run.
type slot struct {
	result  *EvaluationResult
	failure *Failure
}

// EvaluateBatch evaluates documents with a bounded worker pool. Documents
// are independent; results are reassembled in input order regardless of
// completion order. A failed document produces a Failure entry rather than
// aborting the batch. Cancelling ctx stops launching new documents (slots
// not yet started are recorded as canceled) while in-flight documents run
// to completion.
func (e *Evaluator) EvaluateBatch(ctx context.Context, docs []Document, policy transform.Policy, expected map[string]string) ([]EvaluationResult, []Failure, Aggregate) {
	slots := make([]slot, len(docs))

	workers := e.workers
	if workers > len(docs) {
		workers = len(docs)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slots[i] = e.evaluateSlot(ctx, docs[i], policy, expected)
			}
		}()
	}

	launched := 0
dispatch:
	for i := range docs {
		select {
		case <-ctx.Done():
			log.Warn().Int("remaining", len(docs)-i).Msg("batch canceled, letting in-flight documents finish")
			break dispatch
		case jobs <- i:
			launched++
		}
	}
	close(jobs)
	wg.Wait()

	for i := launched; i < len(docs); i++ {
		slots[i] = slot{failure: &Failure{
			DocumentID: docs[i].ID,
			Kind:       FailureCanceled,
			Detail:     context.Cause(ctx).Error(),
		}}
	}

	results := make([]EvaluationResult, 0, len(docs))
	failures := make([]Failure, 0)
	for _, s := range slots {
		switch {
		case s.result != nil:
			results = append(results, *s.result)
		case s.failure != nil:
			failures = append(failures, *s.failure)
		}
	}

	return results, failures, reduce(results, failures)
}

// evaluateSlot runs one document start-to-finish. The evaluation context is
// detached from batch cancellation so an in-flight document completes even
// when the batch stops dispatching.
func (e *Evaluator) evaluateSlot(ctx context.Context, doc Document, policy transform.Policy, expected map[string]string) slot {
	res, err := e.Evaluate(context.WithoutCancel(ctx), doc.ID, doc.Text, expected[doc.ID], policy)
	if err != nil {
		return slot{failure: &Failure{
			DocumentID: doc.ID,
			Kind:       FailureInvalidInput,
			Detail:     err.Error(),
		}}
	}
	return slot{result: &res}
}

// reduce computes aggregate statistics in one pass over the ordered results.
func reduce(results []EvaluationResult, failures []Failure) Aggregate {
	agg := Aggregate{
		Documents: len(results),
		Failures:  len(failures),
	}
	if len(results) == 0 {
		return agg
	}

	var entitySum, simSum float64
	for _, r := range results {
		entitySum += float64(r.EntityCount)
		simSum += r.SimilarityScore
		if r.SimilarityScore > agg.MaxSimilarity {
			agg.MaxSimilarity = r.SimilarityScore
		}
	}
	agg.MeanEntityCount = entitySum / float64(len(results))
	agg.MeanSimilarity = simSum / float64(len(results))
	return agg
}
