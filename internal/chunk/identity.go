package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	vrerrors "github.com/vaultrank/vaultrank/internal/errors"
)

const (
	contentHashLen = 12
	chunkIDLen     = 16
)

var chunkIDPattern = regexp.MustCompile(`^[a-f0-9]{16}$`)

// Identity is the content-addressed identity of a chunk. It is a pure
// function of its inputs: re-chunking an unchanged document under the same
// configuration reproduces the exact same IDs, which is what makes
// re-ingestion idempotent.
type Identity struct {
	// ChunkID is the first 16 hex characters of the SHA-256 of the identity
	// key "{doc_id}|{start}-{end}|{version}|{config_hash}|{content_hash}".
	ChunkID string `json:"chunk_id"`

	// DocID is the vault-relative path of the source document.
	DocID string `json:"doc_id"`

	// Span is the byte range the chunk covers within the document.
	Span Span `json:"span"`

	// Version identifies the document revision the chunk was cut from.
	Version string `json:"version"`

	// ConfigHash fingerprints the chunking parameters in effect.
	ConfigHash string `json:"config_hash"`

	// ContentHash is the first 12 hex characters of the SHA-256 of the
	// chunk content.
	ContentHash string `json:"content_hash"`
}

// HashContent returns the truncated content hash for a chunk body.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:contentHashLen]
}

// NewIdentity derives the deterministic identity for a chunk of content cut
// from docID at span under the given document version and config hash.
func NewIdentity(docID string, span Span, version, configHash, content string) Identity {
	contentHash := HashContent(content)
	key := fmt.Sprintf("%s|%d-%d|%s|%s|%s",
		docID, span.Start, span.End, version, configHash, contentHash)
	sum := sha256.Sum256([]byte(key))
	return Identity{
		ChunkID:     hex.EncodeToString(sum[:])[:chunkIDLen],
		DocID:       docID,
		Span:        span,
		Version:     version,
		ConfigHash:  configHash,
		ContentHash: contentHash,
	}
}

// ValidateChunkID rejects IDs that are not exactly 16 lowercase hex
// characters. Malformed IDs must never reach storage.
func ValidateChunkID(id string) error {
	if !chunkIDPattern.MatchString(id) {
		return vrerrors.ChunkIDError(
			fmt.Sprintf("chunk id %q is not 16 lowercase hex characters", id))
	}
	return nil
}

// ConfigFingerprint returns a stable hash of the chunking parameters so
// identities change when the configuration does.
func ConfigFingerprint(cfg Config) string {
	key := fmt.Sprintf("%d|%.4f|%.4f|%d",
		cfg.ChunkSize, cfg.OverlapRatio, cfg.DedupThreshold, cfg.MinChunkSize)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:contentHashLen]
}
