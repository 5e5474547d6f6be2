package chunk

import "regexp"

// Indicator patterns are counted over the whole document. The ratio of code
// hits to total hits decides the bucket; the patterns are deliberately
// coarse since they only steer chunk sizing, not parsing.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile("```"),
	regexp.MustCompile(`\b(?:def|function|class)\s+\w+`),
	regexp.MustCompile(`\b(?:import|from)\s+[\w."'/]`),
	regexp.MustCompile(`#include\s*[<"]`),
	regexp.MustCompile(`<[A-Za-z][^>\n]*>`),
	regexp.MustCompile(`\([^()\n]*\)`),
	regexp.MustCompile(`\{[^{}\n]*\}?`),
}

var prosePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:the|a|an|is|are|was|were|be|been|and|or|but|of|to|in|with|that|this|it|as|at|on|by|not)\b`),
	regexp.MustCompile(`[.!?](?:\s|$)`),
	regexp.MustCompile(`[A-Za-z]{4,}(?:[\s.,;:!?]|$)`),
}

// Classification thresholds on code/(code+prose).
const (
	codeRatioThreshold  = 0.6
	proseRatioThreshold = 0.3
)

// Classifier buckets document content by counting code and prose indicator
// matches. It is stateless and safe for concurrent use.
type Classifier struct{}

// NewClassifier returns a content classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the content bucket for content.
func (c *Classifier) Classify(content string) ContentType {
	t, _ := c.ClassifyWithRatio(content)
	return t
}

// ClassifyWithRatio returns the bucket together with the code ratio that
// produced it. When no indicator matches at all the ratio is 0 and the
// bucket is ContentTypeUnknown.
func (c *Classifier) ClassifyWithRatio(content string) (ContentType, float64) {
	code := countMatches(codePatterns, content)
	prose := countMatches(prosePatterns, content)

	total := code + prose
	if total == 0 {
		return ContentTypeUnknown, 0
	}

	ratio := float64(code) / float64(total)
	switch {
	case ratio > codeRatioThreshold:
		return ContentTypeCode, ratio
	case ratio < proseRatioThreshold:
		return ContentTypeProse, ratio
	default:
		return ContentTypeMixed, ratio
	}
}

func countMatches(patterns []*regexp.Regexp, content string) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(content, -1))
	}
	return n
}

// OverrideFor returns the chunking parameters for a content bucket. Unknown
// content chunks like prose.
func OverrideFor(t ContentType) Override {
	switch t {
	case ContentTypeCode:
		return Override{ChunkSize: 300, OverlapRatio: 0.10, DedupThreshold: 0.70}
	case ContentTypeMixed:
		return Override{ChunkSize: 400, OverlapRatio: 0.12, DedupThreshold: 0.75}
	default:
		return Override{ChunkSize: 450, OverlapRatio: 0.15, DedupThreshold: 0.80}
	}
}
