package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func vecDot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()

	first, err := e.Embed(context.Background(), "weekly review checklist")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "weekly review checklist")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStaticEmbedder_ProducesUnitVectors(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "parse_http_request handler")
	require.NoError(t, err)

	require.Len(t, vec, StaticDimensions)
	assert.InDelta(t, 1.0, vecNorm(vec), 1e-3)
}

func TestStaticEmbedder_EmptyTextYieldsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()

	for _, text := range []string{"", "   ", "a"} {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, make([]float32, StaticDimensions), vec, "text %q", text)
	}
}

func TestStaticEmbedder_SimilarTextsScoreCloser(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	base, err := e.Embed(ctx, "meeting notes from standup")
	require.NoError(t, err)
	similar, err := e.Embed(ctx, "meeting notes from retro")
	require.NoError(t, err)
	unrelated, err := e.Embed(ctx, "banana smoothie recipe")
	require.NoError(t, err)

	assert.Greater(t, vecDot(base, similar), vecDot(base, unrelated))
}

func TestStaticEmbedder_Dimensions(t *testing.T) {
	assert.Equal(t, StaticDimensions, NewStaticEmbedder().Dimensions())
	assert.Equal(t, 64, NewStaticEmbedderWithDimensions(64).Dimensions())
	assert.Equal(t, StaticDimensions, NewStaticEmbedderWithDimensions(0).Dimensions())
	assert.Equal(t, StaticDimensions, NewStaticEmbedderWithDimensions(-5).Dimensions())
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	single, err := e.Embed(ctx, "grocery list")
	require.NoError(t, err)

	batch, err := e.EmbedBatch(ctx, []string{"grocery list", "tax documents"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, single, batch[0])
	assert.NotEqual(t, batch[0], batch[1])
}

func TestStaticEmbedder_ModelNameAndAvailability(t *testing.T) {
	e := NewStaticEmbedder()

	assert.Equal(t, "static", e.ModelName())
	assert.True(t, e.Available(context.Background()))
	assert.NoError(t, e.Close())
}

func TestStaticTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "splits snake case",
			text: "parse_http_request",
			want: []string{"parse", "http", "request"},
		},
		{
			name: "lowercases and drops stop words",
			text: "The Config And The Parser",
			want: []string{"config", "parser"},
		},
		{
			name: "drops single characters",
			text: "a b cd",
			want: []string{"cd"},
		},
		{
			name: "strips punctuation",
			text: "notes/2024: review!",
			want: []string{"notes", "2024", "review"},
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, staticTokenize(tt.text))
		})
	}
}

func TestHashToIndex_InRange(t *testing.T) {
	for _, s := range []string{"", "a", "token", "longer input string"} {
		idx := hashToIndex(s, 64)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 64)
	}
}
