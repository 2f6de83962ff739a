// Package specid generates run identifiers and stable content hashes used
// as cache and history keys.
package specid

import (
	"encoding/hex"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"

	"github.com/juvistr/draftspec/internal/spectree"
)

// NewRunID returns a fresh, lexicographically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// ContentHash returns the hex-encoded blake3 hash of data, used as the
// content-hash component of a cache key (path, content_hash, mtime).
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IdentityHash returns a compact, deterministic hash of a spec's identity,
// used as the key for history and cache entries.
func IdentityHash(id spectree.Identity) string {
	return ContentHash([]byte(id.String()))
}
