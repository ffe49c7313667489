package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func float64Datatype(t *testing.T) *DatatypeMessage {
	t.Helper()
	data := make([]byte, 8)
	// Class 1 (float), version 1, little-endian; size 8.
	binary.LittleEndian.PutUint32(data[0:4], uint32(DatatypeFloat)|1<<4)
	binary.LittleEndian.PutUint32(data[4:8], 8)
	dt, err := ParseDatatypeMessage(data)
	require.NoError(t, err)
	return dt
}

func TestParseFillValueV2Defined(t *testing.T) {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, math.Float64bits(-1.0))

	data := append([]byte{2, 1, 0, 1, 8, 0, 0, 0}, value...)

	fv, err := ParseFillValueMessage(data)
	require.NoError(t, err)
	require.True(t, fv.IsDefined)
	require.Equal(t, value, fv.Value)

	got, ok := fv.Float64(float64Datatype(t))
	require.True(t, ok)
	require.Equal(t, -1.0, got)
}

func TestParseFillValueV2Undefined(t *testing.T) {
	fv, err := ParseFillValueMessage([]byte{2, 1, 0, 0})
	require.NoError(t, err)
	require.False(t, fv.IsDefined)

	_, ok := fv.Float64(float64Datatype(t))
	require.False(t, ok)
}

func TestParseFillValueV3WithValue(t *testing.T) {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, math.Float64bits(2.5))

	// Flags: alloc time 1, write time 0, defined (bit 4 clear), value
	// present (bit 5 set).
	flags := byte(0x01 | 0x20)
	data := []byte{3, flags, 8, 0, 0, 0}
	data = append(data, value...)

	fv, err := ParseFillValueMessage(data)
	require.NoError(t, err)
	require.True(t, fv.IsDefined)

	got, ok := fv.Float64(float64Datatype(t))
	require.True(t, ok)
	require.Equal(t, 2.5, got)
}

func TestParseFillValueV3Undefined(t *testing.T) {
	fv, err := ParseFillValueMessage([]byte{3, 0x10})
	require.NoError(t, err)
	require.False(t, fv.IsDefined)
}

func TestParseFillValueErrors(t *testing.T) {
	_, err := ParseFillValueMessage([]byte{3})
	require.Error(t, err)

	_, err = ParseFillValueMessage([]byte{9, 0, 0, 0})
	require.Error(t, err)

	// v2 declares an 8-byte value but carries 4 bytes.
	_, err = ParseFillValueMessage([]byte{2, 1, 0, 1, 8, 0, 0, 0, 1, 2, 3, 4})
	require.Error(t, err)
}

func TestFillValueFloat64NilMessage(t *testing.T) {
	var fv *FillValueMessage
	_, ok := fv.Float64(float64Datatype(t))
	require.False(t, ok)
}
