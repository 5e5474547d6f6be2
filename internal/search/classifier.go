package search

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultClassifierCacheSize bounds the classification cache. Entries are
// tiny, so the cache costs well under 1MB even when full.
const DefaultClassifierCacheSize = 10000

// classificationResult holds cached classification data.
type classificationResult struct {
	queryType QueryType
	weights   RRFWeights
}

// CachedClassifier wraps the rule classifier with an LRU cache keyed by the
// normalized query.
type CachedClassifier struct {
	rules *RuleClassifier
	cache *lru.Cache[string, classificationResult]
}

// NewCachedClassifier creates a classifier with the default cache size.
func NewCachedClassifier() *CachedClassifier {
	return NewCachedClassifierWithSize(DefaultClassifierCacheSize)
}

// NewCachedClassifierWithSize creates a classifier with a custom cache size.
func NewCachedClassifierWithSize(size int) *CachedClassifier {
	if size <= 0 {
		size = DefaultClassifierCacheSize
	}
	cache, _ := lru.New[string, classificationResult](size)
	return &CachedClassifier{
		rules: NewRuleClassifier(),
		cache: cache,
	}
}

// Classify determines the query type and rank-merge weights, consulting the
// cache first.
func (c *CachedClassifier) Classify(ctx context.Context, query string) (QueryType, RRFWeights, error) {
	key := normalizeQuery(query)
	if key == "" {
		return QueryTypeGeneral, RRFWeightsForQueryType(QueryTypeGeneral), nil
	}

	if cached, ok := c.cache.Get(key); ok {
		return cached.queryType, cached.weights, nil
	}

	qt, w, err := c.rules.Classify(ctx, query)
	if err == nil {
		c.cache.Add(key, classificationResult{queryType: qt, weights: w})
	}
	return qt, w, err
}

// Len reports how many classifications are cached.
func (c *CachedClassifier) Len() int {
	return c.cache.Len()
}

// normalizeQuery normalizes a query for use as a cache key.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

var _ Classifier = (*CachedClassifier)(nil)
