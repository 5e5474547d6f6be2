package search

import "math"

// Reranker defaults.
const (
	// DefaultAlpha is the relevance/diversity balance: 1.0 is pure
	// relevance, 0.0 pure diversity.
	DefaultAlpha = 0.85

	// DefaultPerSourcePenalty is subtracted once per already-selected
	// result from the same source file.
	DefaultPerSourcePenalty = 0.10
)

// MMR is a greedy maximal-marginal-relevance reranker. Given a candidate
// pool sorted by descending final score, it selects up to k candidates
// balancing relevance against embedding similarity to what was already
// selected, with an extra penalty for repeating a source file.
type MMR struct {
	Alpha            float64
	PerSourcePenalty float64
}

// NewMMR returns a reranker with the default alpha and source penalty.
func NewMMR() *MMR {
	return &MMR{
		Alpha:            DefaultAlpha,
		PerSourcePenalty: DefaultPerSourcePenalty,
	}
}

// NewMMRWithParams returns a reranker with custom parameters. Alpha is
// clamped into [0, 1]; negative penalties are treated as zero.
func NewMMRWithParams(alpha, perSourcePenalty float64) *MMR {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	if perSourcePenalty < 0 {
		perSourcePenalty = 0
	}
	return &MMR{Alpha: alpha, PerSourcePenalty: perSourcePenalty}
}

// Rerank greedily selects up to k candidates from the pool:
//
//	mmr = alpha*score - (1-alpha)*maxSim - penalty*seen[source]
//
// where maxSim is the highest cosine similarity to any already-selected
// candidate (0 while nothing is selected, and 0 for any pair involving an
// empty or zero-norm embedding). Ties pick the earliest pool position. The
// result has no duplicate chunk ids and is always a subset of the input.
// k <= 0 yields an empty result.
func (m *MMR) Rerank(pool []*Candidate, k int) []*Candidate {
	if k <= 0 || len(pool) == 0 {
		return []*Candidate{}
	}
	if k > len(pool) {
		k = len(pool)
	}

	selected := make([]*Candidate, 0, k)
	picked := make([]bool, len(pool))
	seenBySource := make(map[string]int)

	for len(selected) < k {
		bestIdx := -1
		bestScore := math.Inf(-1)

		for i, c := range pool {
			if picked[i] {
				continue
			}

			sim := 0.0
			if len(selected) > 0 {
				sim = math.Inf(-1)
				for _, s := range selected {
					if v := Cosine(c.Embedding, s.Embedding); v > sim {
						sim = v
					}
				}
			}

			score := m.Alpha*c.FinalScore -
				(1-m.Alpha)*sim -
				m.PerSourcePenalty*float64(seenBySource[c.SourceKey()])

			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			break
		}

		c := pool[bestIdx]
		picked[bestIdx] = true
		selected = append(selected, c)
		seenBySource[c.SourceKey()]++
	}

	return selected
}

// CapPerSource filters rows so that no more than cap rows share the same
// case-normalized source key, preserving relative order. cap <= 0 yields
// an empty result.
func CapPerSource(rows []*Candidate, cap int) []*Candidate {
	if cap <= 0 {
		return []*Candidate{}
	}

	counts := make(map[string]int)
	out := make([]*Candidate, 0, len(rows))
	for _, r := range rows {
		key := r.SourceKey()
		if counts[key] >= cap {
			continue
		}
		counts[key]++
		out = append(out, r)
	}
	return out
}

// Cosine returns the cosine similarity of two embeddings. It returns 0
// rather than NaN when either vector is empty, zero-norm, or the
// dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
