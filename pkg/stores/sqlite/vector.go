package sqlite

import (
	"encoding/binary"
	"math"
)

/*
Float32sToBytes packs a vector into little-endian bytes for storage in a
BLOB column.
*/
func Float32sToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))

	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	return buf
}

// BytesToFloat32s is the inverse of Float32sToBytes.
func BytesToFloat32s(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)

	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	return vec
}

/*
Cosine returns the cosine similarity of two vectors, or 0 when either is
empty, zero, or the dimensions disagree.
*/
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
