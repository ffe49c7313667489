package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildDatatype encodes a datatype message and runs it through the parser.
func buildDatatype(t *testing.T, class DatatypeClass, size uint32, bitField uint32) *DatatypeMessage {
	t.Helper()
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], uint32(class)|1<<4|bitField<<8)
	binary.LittleEndian.PutUint32(data[4:8], size)
	dt, err := ParseDatatypeMessage(data)
	require.NoError(t, err)
	return dt
}

func TestDecodeFloat64Float(t *testing.T) {
	dt := buildDatatype(t, DatatypeFloat, 8, 0)

	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, math.Float64bits(-3.25))

	v, err := dt.DecodeFloat64(raw)
	require.NoError(t, err)
	require.Equal(t, -3.25, v)
}

func TestDecodeFloat64SignedFixed(t *testing.T) {
	// Bit 3 of the class bit field marks a signed fixed-point type.
	dt32 := buildDatatype(t, DatatypeFixed, 4, 0x08)
	require.True(t, dt32.IsSigned())

	raw := make([]byte, 4)
	neg32 := int32(-1)
	//nolint:gosec // G115: two's complement encoding for the test fixture
	binary.LittleEndian.PutUint32(raw, uint32(neg32))

	v, err := dt32.DecodeFloat64(raw)
	require.NoError(t, err)
	require.Equal(t, -1.0, v)

	dt64 := buildDatatype(t, DatatypeFixed, 8, 0x08)
	raw = make([]byte, 8)
	neg64 := int64(-42)
	//nolint:gosec // G115: two's complement encoding for the test fixture
	binary.LittleEndian.PutUint64(raw, uint64(neg64))

	v, err = dt64.DecodeFloat64(raw)
	require.NoError(t, err)
	require.Equal(t, -42.0, v)
}

func TestDecodeFloat64UnsignedFixed(t *testing.T) {
	// With the sign bit unset, the full unsigned range must survive:
	// 0xFFFFFFFF is 4294967295, not -1.
	dt32 := buildDatatype(t, DatatypeFixed, 4, 0)
	require.False(t, dt32.IsSigned())

	raw := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	v, err := dt32.DecodeFloat64(raw)
	require.NoError(t, err)
	require.Equal(t, 4294967295.0, v)
	require.Equal(t, "uint32", dt32.String())

	dt64 := buildDatatype(t, DatatypeFixed, 8, 0)
	raw = make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, 1<<63)

	v, err = dt64.DecodeFloat64(raw)
	require.NoError(t, err)
	require.Equal(t, math.Ldexp(1, 63), v)
	require.Equal(t, "uint64", dt64.String())
}

func TestDecodeFloat64Truncated(t *testing.T) {
	dt := buildDatatype(t, DatatypeFloat, 8, 0)
	_, err := dt.DecodeFloat64(make([]byte, 4))
	require.Error(t, err)
}

func TestDecodeFloat64UnsupportedClass(t *testing.T) {
	dt := buildDatatype(t, DatatypeString, 16, 0)
	_, err := dt.DecodeFloat64(make([]byte, 16))
	require.Error(t, err)
}
