// Package weights resolves per-tag channel weight profiles from a YAML
// weight source. Resolution is memoized per (source, tag) and never fails:
// unreadable or unparseable sources fall back to the hardcoded defaults.
package weights

// Profile holds the multiplicative weight for each retrieval channel.
type Profile struct {
	Path   float64 `yaml:"path" json:"path"`
	Short  float64 `yaml:"short" json:"short"`
	Title  float64 `yaml:"title" json:"title"`
	Body   float64 `yaml:"body" json:"body"`
	Vector float64 `yaml:"vector" json:"vector"`
}

// DefaultProfile returns the hardcoded fallback weights used when no
// weight source is configured or the source cannot be loaded.
func DefaultProfile() Profile {
	return Profile{
		Path:   2.0,
		Short:  1.8,
		Title:  1.4,
		Body:   1.0,
		Vector: 1.1,
	}
}

// withBlock overlays a sparse weight block onto the profile.
// Keys present in the block win; unknown keys are ignored.
func (p Profile) withBlock(block map[string]float64) Profile {
	for k, v := range block {
		switch k {
		case "path":
			p.Path = v
		case "short":
			p.Short = v
		case "title":
			p.Title = v
		case "body":
			p.Body = v
		case "vector":
			p.Vector = v
		}
	}
	return p
}

// WithVectorBoost returns a copy with the vector weight increased by the
// given fraction (0.10 means +10%). Used for lexically sparse queries.
func (p Profile) WithVectorBoost(fraction float64) Profile {
	p.Vector *= 1.0 + fraction
	return p
}
