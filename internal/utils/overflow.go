package utils

import (
	"fmt"
	"math"
)

// CheckMultiplyOverflow checks if multiplying two uint64 values would overflow.
// Returns an error if overflow would occur.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil // No overflow when either is zero
	}

	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}

	return nil
}

// SafeMultiply multiplies two uint64 values and returns the result if no overflow occurs.
// Returns 0 and an error if overflow would occur.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// SafeAdd adds two uint64 values, failing on wraparound.
func SafeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("addition overflow: %d + %d exceeds uint64 max", a, b)
	}
	return a + b, nil
}

// ValidateBufferSize validates that a buffer size is within reasonable limits.
// maxSize parameter allows different limits for different use cases.
func ValidateBufferSize(size, maxSize uint64, description string) error {
	if size == 0 {
		return fmt.Errorf("%s: size cannot be zero", description)
	}

	if size > maxSize {
		return fmt.Errorf("%s: size %d exceeds maximum %d", description, size, maxSize)
	}

	return nil
}

// Common buffer size limits.
const (
	// MaxChunkSize limits chunk size to 1GB (reasonable for in-memory processing).
	MaxChunkSize = 1024 * 1024 * 1024 // 1GB

	// MaxSelectionElements limits a single selection to 1 billion elements.
	MaxSelectionElements = 1_000_000_000
)

// ProductDims multiplies a dimension vector with overflow checking.
func ProductDims(dims []uint64) (uint64, error) {
	total := uint64(1)
	for i, d := range dims {
		if err := CheckMultiplyOverflow(total, d); err != nil {
			return 0, fmt.Errorf("dimension product overflow at axis %d: %w", i, err)
		}
		total *= d
	}
	return total, nil
}
