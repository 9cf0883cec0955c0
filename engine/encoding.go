package engine

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFloat64s encodes values as a little-endian sequence of IEEE 754
// float64 values, the layout of a C double array in the engine's memory.
func EncodeFloat64s(values []float64) []byte {
	if len(values) == 0 {
		return nil
	}
	b := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

// DecodeFloat64s decodes a buffer produced by EncodeFloat64s.
func DecodeFloat64s(b []byte) ([]float64, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("engine: invalid float64 buffer length %d (not multiple of 8)", len(b))
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}

// EncodeFloat32s encodes values as a C float array.
func EncodeFloat32s(values []float32) []byte {
	if len(values) == 0 {
		return nil
	}
	b := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeFloat32s decodes a buffer produced by EncodeFloat32s.
func DecodeFloat32s(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("engine: invalid float32 buffer length %d (not multiple of 4)", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// EncodeInt32s encodes values as a C int array.
func EncodeInt32s(values []int32) []byte {
	if len(values) == 0 {
		return nil
	}
	b := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
	}
	return b
}

// DecodeInt32s decodes a buffer produced by EncodeInt32s.
func DecodeInt32s(b []byte) ([]int32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("engine: invalid int32 buffer length %d (not multiple of 4)", len(b))
	}
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// EncodeCString encodes s as a NUL-terminated byte string.
func EncodeCString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// Flatten lays rows out row-major in a single slice. Rows are expected to
// share one length; callers validate that beforehand.
func Flatten(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}
