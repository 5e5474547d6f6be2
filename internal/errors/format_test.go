package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_BasicError(t *testing.T) {
	err := New(ErrCodeFileNotFound, "note 'inbox.md' not found", nil)

	result := FormatForCLI(err)

	assert.Contains(t, result, "Error: note 'inbox.md' not found")
	assert.Contains(t, result, "Code: ERR_201_FILE_NOT_FOUND")
	assert.NotContains(t, result, "Hint:")
}

func TestFormatForCLI_WithSuggestion(t *testing.T) {
	err := New(ErrCodeNetworkUnavailable, "embedding provider is not running", nil).
		WithSuggestion("Start Ollama with 'ollama serve' or set embeddings.provider to static")

	result := FormatForCLI(err)

	assert.Contains(t, result, "Hint:")
	assert.Contains(t, result, "ollama serve")
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	result := FormatForCLI(errors.New("some stdlib error"))

	assert.Contains(t, result, "some stdlib error")
	assert.Contains(t, result, ErrCodeInternal)
}

func TestFormatForCLI_NilError(t *testing.T) {
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON_RoundTrips(t *testing.T) {
	err := New(ErrCodeWeightsInvalid, "weights.yaml: bad mapping", errors.New("yaml: line 3")).
		WithDetail("path", "weights.yaml").
		WithSuggestion("Fix the YAML or delete the file to use defaults")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "ERR_103_WEIGHTS_INVALID", parsed["code"])
	assert.Equal(t, "CONFIG", parsed["category"])
	assert.Equal(t, "yaml: line 3", parsed["cause"])
	assert.Equal(t, false, parsed["retryable"])

	details, ok := parsed["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "weights.yaml", details["path"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestFormatForLog_StructuredFields(t *testing.T) {
	err := New(ErrCodeEmbedProvider, "ollama timed out", errors.New("dial tcp: timeout")).
		WithDetail("model", "nomic-embed-text")

	fields := FormatForLog(err)

	assert.Equal(t, "ERR_303_EMBED_PROVIDER", fields["error_code"])
	assert.Equal(t, "NETWORK", fields["category"])
	assert.Equal(t, true, fields["retryable"])
	assert.Equal(t, "dial tcp: timeout", fields["cause"])
	assert.Equal(t, "nomic-embed-text", fields["detail_model"])
}

func TestFormatForLog_PlainError(t *testing.T) {
	fields := FormatForLog(errors.New("plain"))
	assert.Equal(t, "plain", fields["error"])
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}
