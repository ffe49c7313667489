package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeMultiply(t *testing.T) {
	v, err := SafeMultiply(6, 7)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	_, err = SafeMultiply(math.MaxUint64, 2)
	require.Error(t, err)

	v, err = SafeMultiply(0, math.MaxUint64)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)
}

func TestSafeAdd(t *testing.T) {
	v, err := SafeAdd(40, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	_, err = SafeAdd(math.MaxUint64, 1)
	require.Error(t, err)
}

func TestProductDims(t *testing.T) {
	v, err := ProductDims([]uint64{3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, uint64(60), v)

	v, err = ProductDims(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	_, err = ProductDims([]uint64{math.MaxUint64, 2})
	require.Error(t, err)
}

func TestValidateBufferSize(t *testing.T) {
	require.NoError(t, ValidateBufferSize(100, 1000, "test"))
	require.Error(t, ValidateBufferSize(0, 1000, "test"))
	require.Error(t, ValidateBufferSize(2000, 1000, "test"))
}
