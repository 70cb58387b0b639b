// Package identity derives stable identifiers for pages and chunks.
package identity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgallion1/sitegest/internal/normalize"
)

// PageID returns the hex MD5 digest of the URL bytes. The id depends on
// the URL alone, never on page content.
func PageID(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// ChunkHash returns the hex SHA-256 digest of the comparison form of text.
// It is both the dedup signal and the chunk's storage key.
func ChunkHash(text string) string {
	return ContentHashHex([]byte(normalize.Compare(text)))
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
