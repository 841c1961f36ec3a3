package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeVector packs a vector as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a blob written by encodeVector.
func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("embedding blob is %d bytes, want %d for dim %d", len(blob), dim*4, dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
