package sqlite

import "github.com/agentkits/memory/internal/contenthash"

// contentHash joins parts with "|", hashes with SHA-256, truncates to the
// first 16 bytes, and returns the lowercase hex encoding. Used to dedupe
// user prompts and observations within a short time window without storing
// their full text twice. Delegates to internal/contenthash so the Capture
// Service can compute the identical hash when probing FindPromptByHash /
// FindObservationByHash before a row exists to hash from.
func contentHash(parts ...string) string {
	return contenthash.Hash(parts...)
}
