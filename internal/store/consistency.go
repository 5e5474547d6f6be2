package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DriftKind categorizes one cross-store inconsistency.
type DriftKind int

const (
	// DriftOrphanLexical is a lexical entry with no metadata record.
	DriftOrphanLexical DriftKind = iota
	// DriftOrphanVector is a vector entry with no metadata record.
	DriftOrphanVector
	// DriftMissingLexical is a metadata record absent from the lexical
	// index.
	DriftMissingLexical
	// DriftMissingVector is a metadata record absent from the vector
	// index.
	DriftMissingVector
)

// String returns the drift kind as a stable identifier.
func (k DriftKind) String() string {
	switch k {
	case DriftOrphanLexical:
		return "orphan_lexical"
	case DriftOrphanVector:
		return "orphan_vector"
	case DriftMissingLexical:
		return "missing_lexical"
	case DriftMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Drift is one chunk out of sync between stores.
type Drift struct {
	Kind    DriftKind
	ChunkID string
	Detail  string
}

// ConsistencyReport is the outcome of a full consistency check.
type ConsistencyReport struct {
	// Checked is the number of metadata chunk ids verified.
	Checked int
	// Drifts lists every out-of-sync chunk found.
	Drifts []Drift
	// Took is how long the check ran.
	Took time.Duration
}

// Consistent reports whether no drift was found.
func (r *ConsistencyReport) Consistent() bool { return len(r.Drifts) == 0 }

// ConsistencyCounts holds per-store chunk counts from a quick check.
type ConsistencyCounts struct {
	Chunks  int // metadata records
	Lexical int // lexical index entries
	Vectors int // vector index entries
}

// Consistent reports whether all three counts agree.
func (c ConsistencyCounts) Consistent() bool {
	return c.Chunks == c.Lexical && c.Chunks == c.Vectors
}

// ConsistencyChecker diffs the stores against each other. Metadata is
// the source of truth: entries the indices carry beyond it are
// orphans, entries they lack are missing. Drift appears when an ingest
// dies between store writes.
type ConsistencyChecker struct {
	meta    MetadataStore
	lexical LexicalIndex
	vector  VectorIndex
}

// NewConsistencyChecker creates a checker over the given stores.
func NewConsistencyChecker(meta MetadataStore, lexical LexicalIndex, vector VectorIndex) *ConsistencyChecker {
	return &ConsistencyChecker{meta: meta, lexical: lexical, vector: vector}
}

// Check diffs every chunk id across the stores. Linear in the total
// number of entries.
func (c *ConsistencyChecker) Check(ctx context.Context) (*ConsistencyReport, error) {
	start := time.Now()

	metaIDs, err := c.meta.ListChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list metadata chunk ids: %w", err)
	}
	known := make(map[string]bool, len(metaIDs))
	for _, id := range metaIDs {
		known[id] = true
	}

	lexicalIDs, err := c.lexical.AllIDs(ctx)
	if err != nil {
		// Continue with what we have.
		slog.Warn("cannot list lexical ids for consistency check",
			slog.String("error", err.Error()))
	}
	vectorIDs := c.vector.AllIDs()

	var drifts []Drift
	for _, id := range lexicalIDs {
		if !known[id] {
			drifts = append(drifts, Drift{
				Kind:    DriftOrphanLexical,
				ChunkID: id,
				Detail:  "lexical entry without a metadata record",
			})
		}
	}
	for _, id := range vectorIDs {
		if !known[id] {
			drifts = append(drifts, Drift{
				Kind:    DriftOrphanVector,
				ChunkID: id,
				Detail:  "vector entry without a metadata record",
			})
		}
	}

	inLexical := make(map[string]bool, len(lexicalIDs))
	for _, id := range lexicalIDs {
		inLexical[id] = true
	}
	inVector := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		inVector[id] = true
	}

	for _, id := range metaIDs {
		if !inLexical[id] {
			drifts = append(drifts, Drift{
				Kind:    DriftMissingLexical,
				ChunkID: id,
				Detail:  "metadata record missing from the lexical index",
			})
		}
		if !inVector[id] {
			drifts = append(drifts, Drift{
				Kind:    DriftMissingVector,
				ChunkID: id,
				Detail:  "metadata record missing from the vector index",
			})
		}
	}

	return &ConsistencyReport{
		Checked: len(metaIDs),
		Drifts:  drifts,
		Took:    time.Since(start),
	}, nil
}

// Repair deletes orphaned index entries, best-effort. Missing entries
// cannot be reconstructed here; they need a reindex.
func (c *ConsistencyChecker) Repair(ctx context.Context, drifts []Drift) error {
	var orphanLexical, orphanVector []string
	missing := 0

	for _, d := range drifts {
		switch d.Kind {
		case DriftOrphanLexical:
			orphanLexical = append(orphanLexical, d.ChunkID)
		case DriftOrphanVector:
			orphanVector = append(orphanVector, d.ChunkID)
		case DriftMissingLexical, DriftMissingVector:
			missing++
		}
	}

	if len(orphanLexical) > 0 {
		if err := c.lexical.Delete(ctx, orphanLexical); err != nil {
			slog.Warn("could not delete orphan lexical entries",
				slog.Int("count", len(orphanLexical)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan lexical entries",
				slog.Int("count", len(orphanLexical)))
		}
	}
	if len(orphanVector) > 0 {
		if err := c.vector.Delete(ctx, orphanVector); err != nil {
			slog.Warn("could not delete orphan vector entries",
				slog.Int("count", len(orphanVector)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan vector entries",
				slog.Int("count", len(orphanVector)))
		}
	}
	if missing > 0 {
		slog.Warn("index is missing entries, run 'vaultrank ingest --rebuild'",
			slog.Int("missing", missing))
	}
	return nil
}

// QuickCheck compares per-store counts without touching ids. Cheap
// enough to run at every server start.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (ConsistencyCounts, error) {
	stats, err := c.meta.Stats(ctx)
	if err != nil {
		return ConsistencyCounts{}, fmt.Errorf("metadata stats: %w", err)
	}

	counts := ConsistencyCounts{
		Chunks:  stats.Chunks,
		Vectors: c.vector.Count(),
	}
	if lexStats := c.lexical.Stats(); lexStats != nil {
		counts.Lexical = lexStats.Documents
	}

	if !counts.Consistent() {
		slog.Debug("index counts disagree",
			slog.Int("chunks", counts.Chunks),
			slog.Int("lexical", counts.Lexical),
			slog.Int("vectors", counts.Vectors))
	}
	return counts, nil
}
