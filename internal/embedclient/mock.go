package embedclient

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
)

// mockVector derives a deterministic unit-length pseudo-random vector from
// a hash of text, so an embedding request never truly fails: when the
// subprocess is slow, dead, or exhausted its respawn budget, the caller
// still gets a stable, reproducible vector instead of an error. Grounded
// in the AuthZ embedding worker's DefaultEmbeddingFunction/normalize
// pattern: hash-seed a PRNG, fill each dimension, then L2-normalize.
func mockVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := int64(binary.LittleEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return normalize(v)
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, f := range v {
		sumSquares += float64(f) * float64(f)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}
