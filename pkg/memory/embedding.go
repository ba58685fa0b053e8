package memory

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

const embeddingDims = 128

// Embed is a deterministic hash-to-floats function of the input string.
// It satisfies the Memory Service's embedding contract (spec.md §4.6:
// "deterministic function of the goal string; hash-to-floats is
// acceptable for tests") without pulling in an embedding model.
func Embed(text string) []float32 {
	out := make([]float32, embeddingDims)
	block := []byte(text)
	for i := 0; i < embeddingDims; i += 8 {
		h := sha256.Sum256(append(block, byte(i/8)))
		for j := 0; j < 8 && i+j < embeddingDims; j++ {
			bits := binary.BigEndian.Uint32(h[j*4 : j*4+4])
			// Map to [-1, 1] so downstream cosine distance behaves sanely.
			out[i+j] = float32(bits)/float32(math.MaxUint32)*2 - 1
		}
	}
	return out
}
