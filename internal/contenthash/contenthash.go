// Package contenthash implements the dedup helper shared by the storage
// kernel and the Capture Service: content_hash(parts…) =
// lower(hex(truncate(sha256(join(parts, "|")), 16 bytes))). 64 bits of
// collision space is sufficient for the short per-session dedup windows
// this is used for, not as a general-purpose identity hash.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash joins parts with "|" and returns the truncated SHA-256 hex digest.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}
