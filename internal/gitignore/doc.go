// Package gitignore matches vault paths against gitignore-format rules.
//
// The ingest scanner uses it to keep gitignored files out of the index.
// The vault root's .gitignore applies everywhere; a nested one applies
// only beneath its own directory. Pattern syntax follows git: "*" and
// "?" stop at directory separators while "**" crosses them, a trailing
// "/" restricts a pattern to directories, a leading or internal "/"
// anchors it, and a leading "!" re-includes what an earlier rule
// excluded. The last matching rule wins.
//
//	m := gitignore.New()
//	m.Add("*.tmp", "")
//	m.Add("!keep.tmp", "")
//
//	m.Ignored("drafts/scratch.tmp", false) // true
//	m.Ignored("keep.tmp", false)           // false
//
// Rules from a nested ignore file carry the directory they came from:
//
//	err := m.AddFile("/vault/journal/.gitignore", "journal")
package gitignore
