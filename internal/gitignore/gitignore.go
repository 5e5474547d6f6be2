package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// File is the ignore file name the vault scanner looks for in each
// directory it visits.
const File = ".gitignore"

// Matcher evaluates gitignore rules against vault-relative paths. Rules
// apply in the order they were added and the last match wins, so a
// negation can re-include a path an earlier rule excluded.
//
// A Matcher is not safe for concurrent use; the scan that owns it adds
// rules and matches from a single goroutine.
type Matcher struct {
	rules []rule
}

// rule is one compiled pattern line.
type rule struct {
	raw      string
	re       *regexp.Regexp
	negate   bool   // leading !
	dirOnly  bool   // trailing /
	anchored bool   // leading / or a slash inside the pattern
	base     string // directory of the declaring file, "" for the vault root
}

// New returns a Matcher with no rules. An empty Matcher ignores nothing.
func New() *Matcher {
	return &Matcher{}
}

// Add parses one pattern line and appends it. Blank lines, comments, and
// patterns that do not compile are dropped. base scopes the rule to a
// subtree; pass "" for a rule that applies to the whole vault.
func (m *Matcher) Add(pattern, base string) {
	if r, ok := parseRule(pattern, base); ok {
		m.rules = append(m.rules, r)
	}
}

// AddFile reads a gitignore-format file and appends its rules. base is
// the file's directory relative to the vault root, "" for the root file.
func (m *Matcher) AddFile(filename, base string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	lines := bufio.NewScanner(f)
	for lines.Scan() {
		m.Add(lines.Text(), base)
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("read ignore file: %w", err)
	}
	return nil
}

// Ignored reports whether rel is excluded by the current rules. rel is
// vault-relative; either slash style is accepted.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)

	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// parseRule compiles one pattern line. ok is false for blank lines,
// comments, and patterns whose character classes fail to compile.
func parseRule(line, base string) (rule, bool) {
	// A trailing "\ " keeps its space through the trim below.
	keepTrailingSpace := strings.HasSuffix(line, `\ `)

	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	r := rule{raw: line, base: base}

	pattern := line
	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		// Escaped leading # or ! is a literal character.
		pattern = pattern[1:]
		r.raw = pattern
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = pattern[1:]
	}

	if keepTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// A slash inside the pattern anchors it too: "journal/drafts" means
	// /journal/drafts, not **/journal/drafts.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	re, err := regexp.Compile("^" + translate(pattern) + "$")
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// matches applies one rule to a slash-separated path. A directory rule
// also covers the files inside a matched directory, so "drafts/"
// excludes drafts/idea.md.
func (r rule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		switch {
		case rel == r.base:
			rel = path.Base(rel)
		case strings.HasPrefix(rel, r.base+"/"):
			rel = rel[len(r.base)+1:]
		default:
			return false
		}
	}

	parts := strings.Split(rel, "/")

	if r.anchored {
		if r.re.MatchString(rel) {
			return !r.dirOnly || isDir
		}
		if r.dirOnly {
			// The rule can name a parent directory of rel.
			for i := 1; i < len(parts); i++ {
				if r.re.MatchString(strings.Join(parts[:i], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.re.MatchString(part) {
				return i < len(parts)-1 || isDir
			}
		}
		return false
	}

	// Unanchored file patterns match the basename, the whole path, or
	// any single component.
	if r.re.MatchString(parts[len(parts)-1]) || r.re.MatchString(rel) {
		return true
	}
	for _, part := range parts {
		if r.re.MatchString(part) {
			return true
		}
	}
	return false
}

// translate converts a gitignore pattern to regexp source. "*" and "?"
// stop at slashes; "**" crosses them when it is slash-bounded.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			rest := pattern[i:]
			switch {
			case strings.HasPrefix(rest, "**/"):
				// Zero or more leading directories.
				b.WriteString("(?:.*/)?")
				i += 3
			case strings.HasPrefix(rest, "**") && (i == 0 || pattern[i-1] == '/'):
				b.WriteString(".*")
				i += 2
			default:
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			// Character classes pass through as regexp syntax. A class
			// that fails to compile drops the whole rule in parseRule.
			if end := strings.IndexByte(pattern[i+1:], ']'); end >= 0 {
				b.WriteString(pattern[i : i+end+2])
				i += end + 2
			} else {
				b.WriteString(regexp.QuoteMeta("["))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				b.WriteString(regexp.QuoteMeta(`\`))
				i++
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}
