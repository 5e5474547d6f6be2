// Package searcher opens an indexed vault as a ready-to-query search
// stack: metadata store, lexical and vector indexes, embedder, weight
// provider, and the hybrid engine wired over them.
//
// The CLI commands, the MCP serve path, and the search daemon all go
// through [Open], so every entry point builds the stack the same way
// and picks up the same vault configuration.
//
// Basic usage:
//
//	v, err := searcher.Open(ctx, "/path/to/vault", searcher.Options{})
//	if err != nil {
//	    return err
//	}
//	defer v.Close()
//
//	resp, err := v.Search(ctx, "meeting notes version pinning", search.SearchOptions{Limit: 5})
//
// A caller that already holds an embedder (the daemon shares one across
// vaults) injects it with Options.Embedder; the vault then refuses to
// open an index built at different dimensions instead of silently
// degrading to lexical-only results.
package searcher
