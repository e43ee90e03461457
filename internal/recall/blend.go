// Package recall combines freshly computed decision probabilities with
// priors derived from similar past events. Blend is the pure core; Service
// orchestrates journal, embedding, vector index and the optional event tap
// into the record/retrieve/blend loop.
package recall

// Neighbor is a referential similar-event pair: the event id plus its
// realized outcome probability when one has been recorded. Full neighbor
// payloads are never carried, keeping blend records bounded.
type Neighbor struct {
	ID       string   `json:"id"`
	POutcome *float64 `json:"p_outcome,omitempty"`
}

// BlendResult carries the blended probability and, when any neighbor had a
// recorded outcome, the neighbor-derived prior.
type BlendResult struct {
	PBlend float64  `json:"p_blend"`
	PPrior *float64 `json:"p_prior,omitempty"`
}

// Blend mixes pModel with the mean outcome of the neighbors that carry one.
// Neighbors without a recorded outcome contribute nothing; with no scored
// neighbor at all, pModel passes through unchanged and PPrior stays nil.
func Blend(pModel float64, neighbors []Neighbor, weight float64) BlendResult {
	var sum float64
	var n int
	for _, nb := range neighbors {
		if nb.POutcome == nil {
			continue
		}
		sum += *nb.POutcome
		n++
	}
	if n == 0 {
		return BlendResult{PBlend: pModel}
	}
	prior := sum / float64(n)
	return BlendResult{
		PBlend: weight*prior + (1-weight)*pModel,
		PPrior: &prior,
	}
}
