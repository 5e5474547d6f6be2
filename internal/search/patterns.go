package search

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Compiled patterns for query classification.
var (
	digitPattern       = regexp.MustCompile(`\d`)
	codeKeywordPattern = regexp.MustCompile(`\b(?:function|def|class|import|from|return|if|else|for|while)\b`)
	callPattern        = regexp.MustCompile(`\b[a-zA-Z_]\w*\(\)`)
	memberPattern      = regexp.MustCompile(`\b[a-zA-Z_]\w*\.[a-zA-Z_]\w*\b`)
)

// codeSymbols are single characters that mark a query as code-like.
const codeSymbols = "{}();"

// docPhrases mark a query as documentation-seeking.
var docPhrases = []string{
	"how to", "how-to", "how do",
	"explain", "describe", "guide", "tutorial",
	"overview", "introduction", "setup", "configuration",
}

// shortQueryMaxLen is the character bound for the short-numeric rule.
const shortQueryMaxLen = 20

// classificationRule pairs a predicate with the type it assigns. Rules are
// evaluated in order; the first match wins.
type classificationRule struct {
	label QueryType
	match func(string) bool
}

// classificationRules is the ordered rule table. Predicates receive the
// trimmed, lowercased query.
var classificationRules = []classificationRule{
	{QueryTypeShortNumeric, isShortNumericQuery},
	{QueryTypeCode, isCodeQuery},
	{QueryTypeDocumentation, isDocumentationQuery},
}

func isShortNumericQuery(q string) bool {
	if utf8.RuneCountInString(q) > shortQueryMaxLen {
		return false
	}
	return digitPattern.MatchString(q) || len(strings.Fields(q)) <= 3
}

func isCodeQuery(q string) bool {
	if codeKeywordPattern.MatchString(q) {
		return true
	}
	if callPattern.MatchString(q) || memberPattern.MatchString(q) {
		return true
	}
	return strings.ContainsAny(q, codeSymbols)
}

func isDocumentationQuery(q string) bool {
	for _, phrase := range docPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// RuleClassifier classifies queries with the ordered pattern rules. It is
// stateless and never returns an error.
type RuleClassifier struct{}

// NewRuleClassifier returns a rule-based query classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify determines the query type and its rank-merge weights.
func (r *RuleClassifier) Classify(_ context.Context, query string) (QueryType, RRFWeights, error) {
	qt := classifyQuery(query)
	return qt, RRFWeightsForQueryType(qt), nil
}

func classifyQuery(query string) QueryType {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return QueryTypeGeneral
	}
	for _, rule := range classificationRules {
		if rule.match(q) {
			return rule.label
		}
	}
	return QueryTypeGeneral
}

var _ Classifier = (*RuleClassifier)(nil)
