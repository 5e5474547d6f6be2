package weights

import (
	"log/slog"
	"maps"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// sourceFile is the on-disk schema of a weight source:
//
//	default:
//	  path: 2.0
//	  vector: 1.1
//	tags:
//	  work:
//	    vector: 1.3
//
// Both blocks are sparse; the tag block wins per key over the default
// block, which wins over the hardcoded defaults.
type sourceFile struct {
	Default map[string]float64            `yaml:"default"`
	Tags    map[string]map[string]float64 `yaml:"tags"`
}

// Provider resolves weight profiles with a read-through cache.
// Reads take an atomic snapshot of the cache map; repopulation copies
// and swaps the map under a write lock, so no lock sits on the request
// path. The cache is invalidated only by an explicit Reload.
type Provider struct {
	source string
	logger *slog.Logger

	mu       sync.Mutex // serializes repopulation and reload
	cache    atomic.Pointer[map[string]Profile]
	fallback atomic.Bool // last load fell back to hardcoded defaults
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// NewProvider creates a provider bound to the given weight source path.
// An empty source means no file is consulted and the hardcoded defaults
// apply to every tag.
func NewProvider(source string, opts ...Option) *Provider {
	p := &Provider{
		source: source,
		logger: slog.Default(),
	}
	empty := make(map[string]Profile)
	p.cache.Store(&empty)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Source returns the configured weight source path.
func (p *Provider) Source() string {
	return p.source
}

// Resolve returns the weight profile for a tag from the configured source.
// It never fails: load errors fall back to the hardcoded defaults.
func (p *Provider) Resolve(tag string) Profile {
	return p.ResolveFrom(p.source, tag)
}

// ResolveFrom resolves a tag against an explicit source path, bypassing
// the provider's configured source. Results are memoized per (source, tag).
func (p *Provider) ResolveFrom(source, tag string) Profile {
	key := source + "\x00" + tag

	if prof, ok := (*p.cache.Load())[key]; ok {
		return prof
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have populated the entry while we waited.
	if prof, ok := (*p.cache.Load())[key]; ok {
		return prof
	}

	prof := p.load(source, tag)

	old := *p.cache.Load()
	next := make(map[string]Profile, len(old)+1)
	maps.Copy(next, old)
	next[key] = prof
	p.cache.Store(&next)

	return prof
}

// Reload drops every memoized profile so the next resolution re-reads
// the source. This is the only way cache entries are invalidated.
func (p *Provider) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()

	empty := make(map[string]Profile)
	p.cache.Store(&empty)
}

// UsedFallback reports whether the most recent load fell back to the
// hardcoded defaults because the source was unreadable or unparseable.
func (p *Provider) UsedFallback() bool {
	return p.fallback.Load()
}

// load reads and merges the weight source for one tag.
func (p *Provider) load(source, tag string) Profile {
	prof := DefaultProfile()
	if source == "" {
		return prof
	}

	data, err := os.ReadFile(source)
	if err != nil {
		p.fallback.Store(true)
		p.logger.Warn("weight source unreadable, using defaults",
			slog.String("path", source),
			slog.String("error", err.Error()))
		return prof
	}

	var sf sourceFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		p.fallback.Store(true)
		p.logger.Warn("weight source unparseable, using defaults",
			slog.String("path", source),
			slog.String("error", err.Error()))
		return prof
	}
	p.fallback.Store(false)

	prof = prof.withBlock(p.positiveWeights(source, sf.Default))
	if tag != "" {
		if block, ok := sf.Tags[tag]; ok {
			prof = prof.withBlock(p.positiveWeights(source, block))
		}
	}
	return prof
}

// positiveWeights strips zero and negative values from a weight block.
// A non-positive weight would mute or invert its channel in fusion, so
// the key keeps its default-backed value instead.
func (p *Provider) positiveWeights(source string, block map[string]float64) map[string]float64 {
	valid := make(map[string]float64, len(block))
	for k, v := range block {
		if v <= 0 {
			p.logger.Warn("ignoring non-positive weight, keeping default",
				slog.String("path", source),
				slog.String("key", k),
				slog.Float64("value", v))
			continue
		}
		valid[k] = v
	}
	return valid
}
