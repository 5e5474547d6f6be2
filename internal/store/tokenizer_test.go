package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		minLength int
		want      []string
	}{
		{
			name:      "camelCase identifier",
			text:      "func getUserById",
			minLength: 2,
			want:      []string{"func", "get", "user", "by", "id"},
		},
		{
			name:      "snake_case identifier",
			text:      "def get_user_by_id",
			minLength: 2,
			want:      []string{"def", "get", "user", "by", "id"},
		},
		{
			name:      "acronym run stays together",
			text:      "parseHTTPRequest",
			minLength: 2,
			want:      []string{"parse", "http", "request"},
		},
		{
			name:      "path separators delimit",
			text:      "notes/2024-01-15.md",
			minLength: 2,
			want:      []string{"notes", "2024", "01", "15", "md"},
		},
		{
			name:      "short tokens dropped",
			text:      "a bb c ddd",
			minLength: 2,
			want:      []string{"bb", "ddd"},
		},
		{
			name:      "punctuation and markdown stripped",
			text:      "## Heading: *bold* text!",
			minLength: 2,
			want:      []string{"heading", "bold", "text"},
		},
		{
			name:      "empty text",
			text:      "",
			minLength: 2,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text, tt.minLength)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitToken(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{"getUserConfig", []string{"get", "User", "Config"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"snake_case_id", []string{"snake", "case", "id"}},
		{"mixed_caseToken", []string{"mixed", "case", "Token"}},
		{"__trimmed__", []string{"trimmed"}},
		{"plain", []string{"plain"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitToken(tt.token))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"the", "and"})

	got := FilterStopWords([]string{"the", "quick", "AND", "fox"}, stop)
	assert.Equal(t, []string{"quick", "fox"}, got)
}

func TestFilterStopWords_NoStopWords(t *testing.T) {
	got := FilterStopWords([]string{"alpha", "beta"}, map[string]struct{}{})
	assert.Equal(t, []string{"alpha", "beta"}, got)
}

func TestBuildStopWordMap_Lowercases(t *testing.T) {
	m := BuildStopWordMap([]string{"The", "AND"})

	_, hasThe := m["the"]
	_, hasAnd := m["and"]
	assert.True(t, hasThe)
	assert.True(t, hasAnd)
	assert.Len(t, m, 2)
}
