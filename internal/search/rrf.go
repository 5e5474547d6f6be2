package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is the
// widely used default across retrieval systems.
const DefaultRRFConstant = 60

// mergeEntry holds per-id state during the rank merge.
type mergeEntry struct {
	id         string
	score      float64
	sparseRank int // 1-indexed, 0 if absent
	denseRank  int // 1-indexed, 0 if absent
	inBoth     bool
}

// RRFMerger merges the lexical (sparse) and vector (dense) ranked id lists
// into one pool order using weighted Reciprocal Rank Fusion:
//
//	score(d) = sparse_weight/(k + sparse_rank) + dense_weight/(k + dense_rank)
//
// Ids appearing in only one list use missing_rank = max(len(sparse),
// len(dense)) + 1 for the absent side. The merged order is what fusion and
// reranking treat as the canonical pool position for tie-breaking.
type RRFMerger struct {
	K int
}

// NewRRFMerger creates a merger with the default k.
func NewRRFMerger() *RRFMerger {
	return &RRFMerger{K: DefaultRRFConstant}
}

// NewRRFMergerWithK creates a merger with a custom k. k <= 0 falls back to
// the default.
func NewRRFMergerWithK(k int) *RRFMerger {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFMerger{K: k}
}

// Merge returns the union of both id lists ordered by weighted RRF score.
// Sorting is deterministic: score desc, then in-both-lists first, then
// sparse rank asc, then id asc.
func (m *RRFMerger) Merge(sparse, dense []string, w RRFWeights) []string {
	if len(sparse) == 0 && len(dense) == 0 {
		return []string{}
	}

	entries := make(map[string]*mergeEntry, len(sparse)+len(dense))

	for rank, id := range sparse {
		e := m.getOrCreate(entries, id)
		e.sparseRank = rank + 1
		e.score += w.Sparse / float64(m.K+rank+1)
	}

	for rank, id := range dense {
		e := m.getOrCreate(entries, id)
		e.denseRank = rank + 1
		e.score += w.Dense / float64(m.K+rank+1)
		if e.sparseRank > 0 {
			e.inBoth = true
		}
	}

	missingRank := len(sparse)
	if len(dense) > missingRank {
		missingRank = len(dense)
	}
	missingRank++

	for _, e := range entries {
		if e.sparseRank == 0 {
			e.score += w.Sparse / float64(m.K+missingRank)
		}
		if e.denseRank == 0 {
			e.score += w.Dense / float64(m.K+missingRank)
		}
	}

	ordered := make([]*mergeEntry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return m.less(ordered[i], ordered[j])
	})

	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.id
	}
	return ids
}

func (m *RRFMerger) getOrCreate(entries map[string]*mergeEntry, id string) *mergeEntry {
	if e, ok := entries[id]; ok {
		return e
	}
	e := &mergeEntry{id: id}
	entries[id] = e
	return e
}

// less orders a before b in the merged pool.
func (m *RRFMerger) less(a, b *mergeEntry) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.inBoth != b.inBoth {
		return a.inBoth
	}
	if a.sparseRank != b.sparseRank {
		if a.sparseRank == 0 {
			return false
		}
		if b.sparseRank == 0 {
			return true
		}
		return a.sparseRank < b.sparseRank
	}
	return a.id < b.id
}
