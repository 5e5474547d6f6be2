// Package errors provides structured error handling for vaultrank.
//
// Every error carries a code of the form ERR_NNN_NAME, with the hundreds
// digit naming the category: 1xx config, 2xx file/disk IO, 3xx network,
// 4xx validation, 5xx internal.
package errors

// Category classifies an error for logging and fallback decisions.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity says how a caller should react to the error.
type Severity string

const (
	// SeverityFatal aborts the current operation.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the request but the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning marks degraded but working behavior.
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Error codes by category.
const (
	// 1xx: configuration
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeWeightsInvalid  = "ERR_103_WEIGHTS_INVALID"
	ErrCodeWeightsNotFound = "ERR_104_WEIGHTS_NOT_FOUND"

	// 2xx: file and disk IO
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull       = "ERR_203_DISK_FULL"
	ErrCodeFileTooLarge   = "ERR_204_FILE_TOO_LARGE"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeVaultLocked    = "ERR_206_VAULT_LOCKED"

	// 3xx: network and providers
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeEmbedProvider      = "ERR_303_EMBED_PROVIDER"

	// 4xx: input validation
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidChunkID    = "ERR_403_INVALID_CHUNK_ID"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPath       = "ERR_405_INVALID_PATH"

	// 5xx: internal failures
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
	ErrCodeIngestFailed    = "ERR_505_INGEST_FAILED"
)

// categoryByDigit maps the hundreds digit of a code to its category,
// e.g. the '1' in "ERR_103_WEIGHTS_INVALID".
var categoryByDigit = map[byte]Category{
	'1': CategoryConfig,
	'2': CategoryIO,
	'3': CategoryNetwork,
	'4': CategoryValidation,
	'5': CategoryInternal,
}

// fatalCodes name errors the process cannot recover from within the
// current operation.
var fatalCodes = map[string]bool{
	ErrCodeCorruptIndex: true,
	ErrCodeDiskFull:     true,
}

// retryableCodes name transient failures worth another attempt.
var retryableCodes = map[string]bool{
	ErrCodeNetworkTimeout:     true,
	ErrCodeNetworkUnavailable: true,
	ErrCodeEmbedProvider:      true,
}

func categoryFromCode(code string) Category {
	if len(code) >= 7 {
		if cat, ok := categoryByDigit[code[4]]; ok {
			return cat
		}
	}
	return CategoryInternal
}

func severityFromCode(code string) Severity {
	switch {
	case fatalCodes[code]:
		return SeverityFatal
	case retryableCodes[code]:
		// Transient network failures degrade but do not fail hard.
		return SeverityWarning
	default:
		return SeverityError
	}
}

func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
