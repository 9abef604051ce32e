package model

import (
	"encoding/binary"
	"math"
)

// EncodeVector serializes a float32 vector as little-endian bytes in index
// order, 4 bytes per dimension. This layout is part of the on-disk schema.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes EncodeVector output. A nil or truncated trailing
// chunk is dropped rather than padded.
func DecodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
