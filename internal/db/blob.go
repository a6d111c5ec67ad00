package db

import (
	"encoding/binary"
	"math"
)

// encodeVector packs an embedding as little-endian float32 bytes for BLOB
// storage. A nil or empty vector encodes as nil and is stored as NULL.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a BLOB written by encodeVector. A blob whose length is
// not a multiple of 4 decodes as nil, which scoring treats as a missing
// embedding rather than an error.
func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
