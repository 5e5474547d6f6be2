package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	// VaultTokenizerName is the registered name of the identifier-aware
	// tokenizer.
	VaultTokenizerName = "vault_tokenizer"

	// VaultStopFilterName is the registered name of the stop word filter.
	VaultStopFilterName = "vault_stop"

	// VaultAnalyzerName is the registered name of the full analyzer.
	VaultAnalyzerName = "vault_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(VaultTokenizerName, vaultTokenizerConstructor)
	_ = registry.RegisterTokenFilter(VaultStopFilterName, vaultStopFilterConstructor)
}

// bleveChannels is the indexed document shape: one field per channel.
type bleveChannels struct {
	Path  string `json:"path"`
	Short string `json:"short"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// channelFields in fixed order for per-channel searches.
var channelFields = []string{"path", "short", "title", "body"}

// BleveIndex implements LexicalIndex on Bleve v2. Bleve holds an exclusive
// BoltDB lock, so this backend is single-process; the SQLite backend is
// the default.
type BleveIndex struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string
	config    LexicalConfig
	closed    bool
	stopWords map[string]struct{}
}

var _ LexicalIndex = (*BleveIndex)(nil)

// validateBleveIntegrity checks a Bleve index directory before opening.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

func isBleveCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex creates or opens a Bleve lexical index. An empty path
// creates an in-memory index for testing. Corrupted indexes are cleared
// and recreated.
func NewBleveIndex(path string, config LexicalConfig) (*BleveIndex, error) {
	indexMapping, err := createVaultMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("lexical index corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruptionError(err) {
			slog.Warn("lexical index open failed, clearing",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open index: %w", err)
	}

	return &BleveIndex{
		index:     idx,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}, nil
}

func createVaultMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(VaultAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": VaultTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			VaultStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = VaultAnalyzerName
	return indexMapping, nil
}

// Index adds records to the index.
func (b *BleveIndex) Index(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, rec := range recs {
		doc := bleveChannels{
			Path:  rec.Path,
			Short: rec.Short,
			Title: rec.Title,
			Body:  rec.Body,
		}
		if err := batch.Index(rec.ChunkID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", rec.ChunkID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search runs one field-scoped match query per channel and merges the
// results by chunk id, normalizing each channel to [0, 1] against the
// page maximum.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalHit{}, nil
	}

	byID := make(map[string]*LexicalHit)
	order := []string{}
	matched := make(map[string]map[string]struct{})

	for _, field := range channelFields {
		matchQuery := bleve.NewMatchQuery(queryStr)
		matchQuery.SetField(field)

		req := bleve.NewSearchRequest(matchQuery)
		req.Size = limit
		req.IncludeLocations = true

		result, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("search field %s: %w", field, err)
		}

		for _, hit := range result.Hits {
			h, ok := byID[hit.ID]
			if !ok {
				h = &LexicalHit{ChunkID: hit.ID}
				byID[hit.ID] = h
				order = append(order, hit.ID)
				matched[hit.ID] = make(map[string]struct{})
			}
			switch field {
			case "path":
				h.Path = hit.Score
			case "short":
				h.Short = hit.Score
			case "title":
				h.Title = hit.Score
			case "body":
				h.Body = hit.Score
			}
			for _, term := range matchedFieldTerms(hit, field) {
				matched[hit.ID][term] = struct{}{}
			}
		}
	}

	hits := make([]*LexicalHit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		for term := range matched[id] {
			h.MatchedTerms = append(h.MatchedTerms, term)
		}
		sort.Strings(h.MatchedTerms)
		hits = append(hits, h)
	}

	// Best combined raw score first; RRF consumes this as the lexical rank.
	sort.SliceStable(hits, func(i, j int) bool {
		si := hits[i].Path + hits[i].Short + hits[i].Title + hits[i].Body
		sj := hits[j].Path + hits[j].Short + hits[j].Title + hits[j].Body
		if si != sj {
			return si > sj
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	normalizeChannels(hits)
	return hits, nil
}

// matchedFieldTerms extracts the matched terms for one field of a hit.
func matchedFieldTerms(hit *search.DocumentMatch, field string) []string {
	terms := make([]string, 0, 4)
	for hitField, locations := range hit.Locations {
		if hitField != field {
			continue
		}
		for term := range locations {
			terms = append(terms, term)
		}
	}
	return terms
}

// Delete removes chunks from the index.
func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// AllIDs returns every chunk id present in the index.
func (b *BleveIndex) AllIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return []string{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Stats returns index statistics.
func (b *BleveIndex) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := &IndexStats{Backend: string(BackendBleve)}
	if b.closed {
		return stats
	}

	docCount, _ := b.index.DocCount()
	stats.Documents = int(docCount)
	return stats
}

// Close closes the index. Idempotent.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// vaultTokenizerConstructor builds the identifier-aware tokenizer.
func vaultTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &vaultTokenizer{}, nil
}

type vaultTokenizer struct{}

// Tokenize implements analysis.Tokenizer using the shared vault rules.
func (t *vaultTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text, 2)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

// vaultStopFilterConstructor builds the stop word filter.
func vaultStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &vaultStopFilter{
		stopWords: BuildStopWordMap(DefaultStopWords),
	}, nil
}

type vaultStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *vaultStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
