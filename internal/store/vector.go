package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex on the pure Go coder/hnsw graph.
// Deletes are lazy: the node stays in the graph but loses its ID
// mapping, because removing the last node corrupts the graph in
// coder/hnsw. Orphans are dropped from results and reclaimed by a
// rebuild.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig
	path   string

	idMap   map[string]uint64    // chunk ID -> internal key
	keyMap  map[uint64]string    // internal key -> chunk ID
	vectors map[uint64][]float32 // internal key -> stored (normalized) vector

	nextKey uint64
	gen     uint64 // bumped on every mutation; guards compaction swaps
	dirty   bool
	closed  bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// hnswMeta is the gob-persisted companion of the exported graph. The
// stored vectors ride along so Lookup works after a reload without
// touching graph internals.
type hnswMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
	Vectors map[uint64][]float32
}

// NewHNSWIndex creates a vector index backed by path, loading any
// existing graph. An empty path keeps the index in memory for testing.
// A corrupted on-disk index is cleared and recreated.
func NewHNSWIndex(path string, cfg VectorConfig) (*HNSWIndex, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 32
	}

	idx := &HNSWIndex{
		graph:   newGraph(cfg),
		config:  cfg,
		path:    path,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vectors: make(map[uint64][]float32),
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		if fileExists(path) {
			if err := idx.load(path); err != nil {
				slog.Warn("vector index corrupted, clearing",
					slog.String("path", path),
					slog.String("error", err.Error()))
				os.Remove(path)
				os.Remove(path + ".meta")
				idx.graph = newGraph(cfg)
				idx.config = cfg
				idx.idMap = make(map[string]uint64)
				idx.keyMap = make(map[uint64]string)
				idx.vectors = make(map[uint64][]float32)
				idx.nextKey = 0
			}
		}
	}

	return idx, nil
}

func newGraph(cfg VectorConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Add inserts vectors under their chunk IDs. Existing IDs are replaced.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(v),
			}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.vectors, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		s.vectors[key] = vec
	}

	s.gen++
	s.dirty = true
	return nil
}

// Search returns the k nearest chunks with similarity scores and their
// stored embeddings.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalized)
	}

	nodes := s.graph.Search(normalized, k)

	hits := make([]*VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// Lazy-deleted orphan still present in the graph.
			continue
		}

		distance := s.graph.Distance(normalized, node.Value)
		hits = append(hits, &VectorHit{
			ChunkID:   id,
			Score:     float64(distanceToScore(distance, s.config.Metric)),
			Embedding: node.Value,
		})
	}

	return hits, nil
}

// Lookup returns the stored embedding for a chunk ID.
func (s *HNSWIndex) Lookup(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false
	}
	key, exists := s.idMap[id]
	if !exists {
		return nil, false
	}
	vec, ok := s.vectors[key]
	return vec, ok
}

// Delete removes chunk IDs from the index. The graph nodes remain as
// orphans until the next rebuild.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.vectors, key)
			delete(s.idMap, id)
		}
	}

	s.gen++
	s.dirty = true
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// AllIDs returns every live chunk id in the index. Orphaned graph
// nodes left behind by lazy deletes are not included.
func (s *HNSWIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// VectorStats reports live versus orphaned graph nodes, used to decide
// when a rebuild is worth it.
type VectorStats struct {
	Active     int
	GraphNodes int
	Orphans    int
}

// Stats returns graph occupancy statistics.
func (s *HNSWIndex) Stats() VectorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return VectorStats{}
	}
	active := len(s.idMap)
	nodes := s.graph.Len()
	return VectorStats{
		Active:     active,
		GraphNodes: nodes,
		Orphans:    nodes - active,
	}
}

// ErrCompactionStale reports that the index was mutated while a
// compaction rebuild was in flight, so the rebuilt graph was discarded.
var ErrCompactionStale = errors.New("vector index changed during compaction")

// Compact rebuilds the graph from the live vectors, dropping orphaned
// nodes left behind by lazy deletes. The rebuild runs outside the lock
// so searches stay responsive; the swap only happens if no mutation
// landed in between, otherwise ErrCompactionStale is returned and the
// caller can retry on the next idle window. Returns nil without work
// when there are no orphans.
func (s *HNSWIndex) Compact(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("vector index is closed")
	}
	if s.graph.Len() == len(s.idMap) {
		s.mu.RUnlock()
		return nil
	}

	startGen := s.gen
	ids := make([]string, 0, len(s.idMap))
	vecs := make([][]float32, 0, len(s.idMap))
	for id, key := range s.idMap {
		ids = append(ids, id)
		vecs = append(vecs, s.vectors[key])
	}
	s.mu.RUnlock()

	graph := newGraph(s.config)
	idMap := make(map[string]uint64, len(ids))
	keyMap := make(map[uint64]string, len(ids))
	vectors := make(map[uint64][]float32, len(ids))

	// Stored vectors are already normalized, so they go straight back
	// into the fresh graph.
	const checkEvery = 256
	for i, id := range ids {
		if i%checkEvery == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		key := uint64(i)
		graph.Add(hnsw.MakeNode(key, vecs[i]))
		idMap[id] = key
		keyMap[key] = id
		vectors[key] = vecs[i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	if s.gen != startGen {
		return ErrCompactionStale
	}

	s.graph = graph
	s.idMap = idMap
	s.keyMap = keyMap
	s.vectors = vectors
	s.nextKey = uint64(len(ids))
	s.dirty = true
	return nil
}

// Save persists the graph and ID mappings to disk. No-op for in-memory
// indexes.
func (s *HNSWIndex) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	return s.saveLocked()
}

func (s *HNSWIndex) saveLocked() error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	if err := s.saveMeta(s.path + ".meta"); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	s.dirty = false
	return nil
}

func (s *HNSWIndex) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMeta{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
		Vectors: s.vectors,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func (s *HNSWIndex) load(path string) error {
	if err := s.loadMeta(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *HNSWIndex) loadMeta(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.vectors = meta.Vectors
	if s.vectors == nil {
		s.vectors = make(map[uint64][]float32)
	}
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close persists pending changes and releases the graph. Idempotent.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var saveErr error
	if s.dirty {
		saveErr = s.saveLocked()
	}

	s.closed = true
	s.graph = nil
	return saveErr
}

// ReadVectorIndexDimensions reads the configured dimensions of an
// existing on-disk index, or 0 for a fresh start.
func ReadVectorIndexDimensions(vectorPath string) (int, error) {
	file, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open vector metadata: %w", err)
	}
	defer file.Close()

	var meta hnswMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode vector metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

// normalizeVectorInPlace scales a vector to unit length. Zero vectors
// are left untouched.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts a graph distance into a similarity score in
// [0, 1]. Cosine distance spans 0 to 2, so halve before inverting.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
