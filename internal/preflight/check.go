package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaultrank/vaultrank/internal/embed"
)

// CheckStatus is the outcome of one preflight check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	}
	return "UNKNOWN"
}

// CheckResult is the outcome of a single check. Required results that
// fail block startup; everything else is advisory.
type CheckResult struct {
	Name     string
	Status   CheckStatus
	Message  string
	Details  string
	Required bool
}

// IsCritical reports whether this result should block startup.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// pass and fail build results for the required host checks.
func pass(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: msg, Required: true}
}

func fail(name, msg, details string) CheckResult {
	return CheckResult{Name: name, Status: StatusFail, Message: msg, Details: details, Required: true}
}

// Checker runs environment checks before ingest or serving starts.
type Checker struct {
	offline  bool
	verbose  bool
	output   io.Writer
	embedder embed.Embedder
}

// Option configures a Checker.
type Option func(*Checker)

// WithOffline skips checks that reach out to external services.
func WithOffline(offline bool) Option {
	return func(c *Checker) { c.offline = offline }
}

// WithVerbose enables detail lines in printed results.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// WithEmbedder sets the embedder probed by the embedder check.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// New creates a Checker writing to stdout unless overridden.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll executes every check against the vault root. The embedder
// probe reaches over the network and is skipped in offline mode.
func (c *Checker) RunAll(ctx context.Context, root string) []CheckResult {
	results := []CheckResult{
		c.CheckDiskSpace(root),
		c.CheckMemory(),
		c.CheckWritePermissions(root),
		c.CheckFileDescriptors(),
	}
	if !c.offline {
		results = append(results, c.CheckEmbedder(ctx))
	}
	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus collapses the results into failed, ready_with_warnings,
// or ready.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	summary := "ready"
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			summary = "ready_with_warnings"
		}
	}
	return summary
}

// PrintResults renders the results as a doctor-style report.
func (c *Checker) PrintResults(results []CheckResult) {
	w := c.output
	fmt.Fprintln(w, "Vaultrank System Check")
	fmt.Fprintln(w, "======================")
	fmt.Fprintln(w)

	var errs, warns []string
	for _, r := range results {
		fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			fmt.Fprintf(w, "      %s\n", r.Details)
		}
		switch {
		case r.IsCritical():
			errs = append(errs, r.Name+": "+r.Message)
		case r.Status == StatusWarn:
			warns = append(warns, r.Name+": "+r.Message)
		}
	}

	fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	for _, group := range []struct {
		label string
		items []string
	}{{"error", errs}, {"warning", warns}} {
		if len(group.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%d %s(s):\n", len(group.items), group.label)
		for _, item := range group.items {
			fmt.Fprintf(w, "  - %s\n", item)
		}
	}
}

// CheckWritePermissions probes the vault root with a throwaway file.
// Ingest writes the data directory there, so this has to pass.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	probe := filepath.Join(path, ".vaultrank-preflight-test")
	f, err := os.Create(probe)
	if err != nil {
		return fail("write_permissions", fmt.Sprintf("permission denied: %v", err), "")
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return pass("write_permissions", "OK")
}
