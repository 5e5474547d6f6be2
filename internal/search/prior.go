package search

import (
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Prior term values. Boosts are positive, penalties negative; the fuser
// divides their sum by 10 and clamps, so even all of them together shift a
// score by at most 5%.
const (
	codeFilenameBoost = 0.3
	fencedBlockBoost  = 0.2
	ddlBoost          = 0.2
	journalPenalty    = -0.3
	tagPathBoost      = 0.15
)

var (
	codeFilePattern = regexp.MustCompile(`(?i)\.(go|py|js|ts|tsx|jsx|rs|java|kt|c|cpp|h|hpp|rb|php|swift|sh|sql)$`)
	ddlPattern      = regexp.MustCompile(`(?i)\b(?:CREATE|ALTER|DROP)\s+(?:TABLE|INDEX|VIEW)\b`)
	datedNamePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// journalSegments are path segments marking journal-style notes.
var journalSegments = map[string]bool{
	"journal": true,
	"diary":   true,
	"daily":   true,
}

// PriorScorer derives small heuristic prior terms from a candidate's path
// and content. Terms feed the fuser's bounded multiplier and are also
// exposed on the candidate as a summed diagnostic score.
type PriorScorer struct {
	// tagPatterns maps a tag to glob patterns; candidates whose path
	// matches a pattern of the query's tag get a small boost.
	tagPatterns map[string][]string
}

// NewPriorScorer creates a prior scorer. tagPatterns may be nil.
func NewPriorScorer(tagPatterns map[string][]string) *PriorScorer {
	return &PriorScorer{tagPatterns: tagPatterns}
}

// Terms returns the prior terms for a candidate under the given tag.
func (p *PriorScorer) Terms(c *Candidate, tag string) []PriorTerm {
	var terms []PriorTerm

	if codeFilePattern.MatchString(c.Path) {
		terms = append(terms, PriorTerm{Name: "code_filename", Value: codeFilenameBoost})
	}
	if strings.Contains(c.Content, "```") {
		terms = append(terms, PriorTerm{Name: "fenced_block", Value: fencedBlockBoost})
	}
	if ddlPattern.MatchString(c.Content) {
		terms = append(terms, PriorTerm{Name: "ddl_statement", Value: ddlBoost})
	}
	if isJournalPath(c.Path) {
		terms = append(terms, PriorTerm{Name: "journal_note", Value: journalPenalty})
	}
	if tag != "" && p.matchesTagPattern(tag, c.Path) {
		terms = append(terms, PriorTerm{Name: "tag_path", Value: tagPathBoost})
	}

	return terms
}

// matchesTagPattern reports whether the path matches any glob registered
// for the tag. Invalid patterns are skipped.
func (p *PriorScorer) matchesTagPattern(tag, candidatePath string) bool {
	for _, pattern := range p.tagPatterns[tag] {
		ok, err := doublestar.Match(pattern, candidatePath)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// isJournalPath reports whether the path looks like a journal note: a
// date-stamped filename or a journal/diary/daily directory segment.
func isJournalPath(candidatePath string) bool {
	if datedNamePattern.MatchString(path.Base(candidatePath)) {
		return true
	}
	normalized := strings.ToLower(strings.ReplaceAll(candidatePath, "\\", "/"))
	for _, seg := range strings.Split(normalized, "/") {
		if journalSegments[seg] {
			return true
		}
	}
	return false
}
