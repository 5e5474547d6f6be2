// Package validation runs data-driven quality checks against a built
// index through the MCP tool surface, so checks exercise the same path
// MCP clients use.
//
// Check queries live in a YAML suite the vault owner maintains, split
// into three groups: golden queries must surface an expected note,
// recall queries are advisory, and smoke queries only need to complete
// without an internal error.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaultrank/vaultrank/internal/mcp"
)

// Group classifies check queries by how strictly they are judged.
type Group string

const (
	// GroupGolden queries must place an expected path in the results.
	GroupGolden Group = "golden"
	// GroupRecall queries are advisory; misses are reported, not fatal.
	GroupRecall Group = "recall"
	// GroupSmoke queries only need to finish without an internal error.
	GroupSmoke Group = "smoke"
)

// QuerySpec defines one check query with expected results.
type QuerySpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Query    string   `yaml:"query"`
	Tag      string   `yaml:"tag,omitempty"`
	Expected []string `yaml:"expected,omitempty"` // path prefixes or fragments
	Notes    string   `yaml:"notes,omitempty"`
	Group    Group    `yaml:"-"` // stamped during load
}

// Suite holds the check queries for a vault.
type Suite struct {
	Golden []QuerySpec `yaml:"golden"`
	Recall []QuerySpec `yaml:"recall"`
	Smoke  []QuerySpec `yaml:"smoke"`
}

// All returns every query in run order with groups stamped.
func (s *Suite) All() []QuerySpec {
	all := make([]QuerySpec, 0, s.Len())
	all = append(all, s.Golden...)
	all = append(all, s.Recall...)
	all = append(all, s.Smoke...)
	return all
}

// Len returns the total number of queries.
func (s *Suite) Len() int {
	return len(s.Golden) + len(s.Recall) + len(s.Smoke)
}

// SuiteFile is the default suite filename inside the data directory.
const SuiteFile = "checks.yaml"

// DefaultSuitePath returns the conventional suite location.
func DefaultSuitePath(dataDir string) string {
	return filepath.Join(dataDir, SuiteFile)
}

// LoadSuite reads a check suite from a YAML file and stamps each query
// with its group.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read check suite %s: %w", path, err)
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parse check suite %s: %w", path, err)
	}

	for i := range suite.Golden {
		suite.Golden[i].Group = GroupGolden
	}
	for i := range suite.Recall {
		suite.Recall[i].Group = GroupRecall
	}
	for i := range suite.Smoke {
		suite.Smoke[i].Group = GroupSmoke
	}

	if suite.Len() == 0 {
		return nil, fmt.Errorf("check suite %s contains no queries", path)
	}

	return &suite, nil
}

// StarterSuite is written by 'vaultrank check --init' as a template.
const StarterSuite = `# Check suite for this vault.
#
# Golden queries must place one of the expected paths in the results.
# Recall queries are advisory; misses are reported but do not fail the
# run. Smoke queries only need to complete without an internal error.
#
# golden:
#   - id: G1
#     name: weekly review note
#     query: gtd weekly review
#     expected:
#       - notes/gtd.md
#
# recall:
#   - id: R1
#     name: garden topic
#     query: compost temperature tomato beds
#     expected:
#       - journal/
#     notes: any journal entry counts

smoke:
  - id: S1
    name: emoji only
    query: "🔥🎉✨"
  - id: S2
    name: single character
    query: "k"
`

// Result captures the outcome of a single check query.
type Result struct {
	Spec      QuerySpec
	Passed    bool
	Duration  time.Duration
	Paths     []string // paths returned, in rank order
	MatchedAt int      // rank of first expected match, -1 if absent
	Error     string
}

// Report aggregates a full check run.
type Report struct {
	Timestamp time.Time
	Embedder  string
	Results   []Result
}

// Counts returns passed and total counts for one group.
func (r *Report) Counts(group Group) (passed, total int) {
	for _, res := range r.Results {
		if res.Spec.Group != group {
			continue
		}
		total++
		if res.Passed {
			passed++
		}
	}
	return passed, total
}

// Failed returns the failing results in run order.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Ok reports whether the run should exit clean: every golden and smoke
// query passed. Recall misses are advisory.
func (r *Report) Ok() bool {
	for _, res := range r.Results {
		if res.Passed || res.Spec.Group == GroupRecall {
			continue
		}
		return false
	}
	return true
}

// DefaultQueryLimit is how many results each check query requests.
const DefaultQueryLimit = 10

// Validator runs check queries against an MCP server.
type Validator struct {
	server       *mcp.Server
	limit        int
	embedderName string
}

// Option configures a Validator.
type Option func(*Validator)

// WithLimit sets how many results each query requests.
func WithLimit(limit int) Option {
	return func(v *Validator) {
		if limit > 0 {
			v.limit = limit
		}
	}
}

// WithEmbedderName records the embedder identity in reports.
func WithEmbedderName(name string) Option {
	return func(v *Validator) {
		v.embedderName = name
	}
}

// NewValidator creates a validator over an already-wired MCP server.
func NewValidator(server *mcp.Server, opts ...Option) *Validator {
	v := &Validator{
		server: server,
		limit:  DefaultQueryLimit,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RunQuery executes a single check query and judges the outcome.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) Result {
	start := time.Now()
	result := Result{
		Spec:      spec,
		MatchedAt: -1,
	}

	args := map[string]any{
		"query": spec.Query,
		"limit": float64(v.limit),
	}
	if spec.Tag != "" {
		args["tag"] = spec.Tag
	}

	resp, err := v.server.CallTool(ctx, "search_vault", args)
	result.Duration = time.Since(start)

	if err != nil {
		// Smoke queries accept an orderly error; anything else fails.
		if spec.Group == GroupSmoke {
			result.Passed = true
			return result
		}
		result.Error = err.Error()
		return result
	}

	text, _ := resp.(string)
	result.Paths = extractPaths(text)

	if len(spec.Expected) == 0 {
		result.Passed = true
		return result
	}

	result.Passed, result.MatchedAt = matchExpected(result.Paths, spec.Expected)
	return result
}

// Run executes the whole suite and returns the aggregated report.
func (v *Validator) Run(ctx context.Context, suite *Suite) *Report {
	report := &Report{
		Timestamp: time.Now(),
		Embedder:  v.embedderName,
		Results:   make([]Result, 0, suite.Len()),
	}

	for _, spec := range suite.All() {
		report.Results = append(report.Results, v.RunQuery(ctx, spec))
	}

	return report
}

// resultLine matches the per-result heading in search_vault markdown,
// e.g. "### 3. notes/gtd.md (score: 0.87)".
var resultLine = regexp.MustCompile(`^### \d+\. (.+) \(score: [0-9.]+\)$`)

// extractPaths pulls result paths out of search_vault markdown in rank
// order.
func extractPaths(markdown string) []string {
	var paths []string
	for _, line := range strings.Split(markdown, "\n") {
		if m := resultLine.FindStringSubmatch(line); m != nil {
			paths = append(paths, m[1])
		}
	}
	return paths
}

// matchExpected finds the first result matching any expected entry.
// Entries match as path prefixes or fragments, so "journal/" covers a
// directory and "gtd" covers any note mentioning it in its path.
func matchExpected(paths, expected []string) (bool, int) {
	for i, path := range paths {
		for _, exp := range expected {
			if strings.HasPrefix(path, exp) || strings.Contains(path, exp) {
				return true, i
			}
		}
	}
	return false, -1
}
