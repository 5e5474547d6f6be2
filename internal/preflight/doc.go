// Package preflight validates the host environment before indexing or
// serving begins.
//
// The package checks:
//   - Free disk space at the vault root (minimum 100MB)
//   - Available memory (minimum 1GB)
//   - Write permissions in the vault root
//   - File descriptor limits (minimum 1024)
//   - Embedder reachability (non-critical, static fallback exists)
//
// A marker file in the data directory records a passed run so the checks
// only repeat when the marker is missing or stale:
//
//	checker := preflight.New(preflight.WithEmbedder(emb))
//	results := checker.RunAll(ctx, root)
//	if checker.HasCriticalFailures(results) {
//	    checker.PrintResults(results)
//	}
package preflight
