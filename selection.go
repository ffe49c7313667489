package hdf5

import (
	"fmt"

	"github.com/sciforge/hdf5/internal/utils"
)

// Selection describes which elements of a dataset a read targets.
// The concrete types are AllSelection, HyperslabSelection and
// SteppedSelection.
type Selection interface {
	// NumElements returns the number of elements the selection picks out
	// of a dataspace with the given dimensions.
	NumElements(dims []uint64) (uint64, error)
}

// AllSelection selects every element of the dataspace in row-major order.
type AllSelection struct{}

// NumElements returns the total element count of the dataspace.
func (AllSelection) NumElements(dims []uint64) (uint64, error) {
	return utils.ProductDims(dims)
}

// HyperslabSelection represents a rectangular selection in N-dimensional
// space, following the HDF5 hyperslab model: per axis it picks Block[i]
// consecutive elements every Stride[i] elements, Count[i] times, starting
// at Start[i].
//
// Nil Stride defaults to Block (adjacent blocks); nil Block defaults to all
// 1s. Call Validate to normalize and bounds-check a selection before use.
//
// The elements a hyperslab enumerates form a gap-free "compact" space of
// shape Count[i]*Block[i] per axis; LinearIndexAt and CoordsAt convert
// between dataspace coordinates and row-major positions in that compact
// space.
type HyperslabSelection struct {
	Start  []uint64
	Stride []uint64 // nil means adjacent blocks (stride = block)
	Count  []uint64
	Block  []uint64 // nil means all 1s (single element blocks)
}

// Rank returns the number of axes.
func (s *HyperslabSelection) Rank() int {
	return len(s.Start)
}

// NumElements returns the element count: product of Count[i]*Block[i].
func (s *HyperslabSelection) NumElements(dims []uint64) (uint64, error) {
	if len(s.Start) != len(dims) {
		return 0, fmt.Errorf("selection rank %d does not match dataspace rank %d",
			len(s.Start), len(dims))
	}
	return utils.ProductDims(s.CompactDims())
}

// CompactDims returns the gap-free shape of the selection: Count[i]*Block[i]
// per axis. The selection must be normalized (see Validate).
func (s *HyperslabSelection) CompactDims() []uint64 {
	dims := make([]uint64, len(s.Count))
	for i := range s.Count {
		block := uint64(1)
		if s.Block != nil {
			block = s.Block[i]
		}
		dims[i] = s.Count[i] * block
	}
	return dims
}

// Validate normalizes nil Stride/Block and checks the selection against the
// dataspace dimensions: every axis needs count >= 1, block >= 1,
// stride >= block, and a bounding box inside the dataspace. On an axis with
// count == 1 a stride below the block is accepted and raised to the block.
func (s *HyperslabSelection) Validate(dims []uint64) error {
	ndims := len(dims)

	if len(s.Start) != ndims {
		return fmt.Errorf("start rank (%d) != dataspace rank (%d)", len(s.Start), ndims)
	}
	if len(s.Count) != ndims {
		return fmt.Errorf("count rank (%d) != dataspace rank (%d)", len(s.Count), ndims)
	}
	if s.Stride != nil && len(s.Stride) != ndims {
		return fmt.Errorf("stride rank (%d) != dataspace rank (%d)", len(s.Stride), ndims)
	}
	if s.Block != nil && len(s.Block) != ndims {
		return fmt.Errorf("block rank (%d) != dataspace rank (%d)", len(s.Block), ndims)
	}

	if s.Block == nil {
		s.Block = make([]uint64, ndims)
		for i := range s.Block {
			s.Block[i] = 1
		}
	}
	if s.Stride == nil {
		s.Stride = make([]uint64, ndims)
		copy(s.Stride, s.Block)
	}

	for i := 0; i < ndims; i++ {
		if s.Count[i] == 0 {
			return fmt.Errorf("count must be > 0 in dimension %d", i)
		}
		if s.Block[i] == 0 {
			return fmt.Errorf("block must be > 0 in dimension %d", i)
		}
		if s.Stride[i] < s.Block[i] {
			// Stride carries no meaning for a single block; normalize it
			// so index arithmetic can assume stride >= block.
			if s.Count[i] == 1 {
				s.Stride[i] = s.Block[i]
			} else {
				return fmt.Errorf("stride (%d) must be >= block (%d) in dimension %d",
					s.Stride[i], s.Block[i], i)
			}
		}

		// Bounding box: start + (count-1)*stride + block must fit.
		span, err := utils.SafeMultiply(s.Count[i]-1, s.Stride[i])
		if err != nil {
			return fmt.Errorf("selection overflow in dimension %d: %w", i, err)
		}
		end, err := utils.SafeAdd(s.Start[i], span)
		if err != nil {
			return fmt.Errorf("selection overflow in dimension %d: %w", i, err)
		}
		end, err = utils.SafeAdd(end, s.Block[i])
		if err != nil {
			return fmt.Errorf("selection overflow in dimension %d: %w", i, err)
		}
		if end > dims[i] {
			return fmt.Errorf("selection out of bounds in dimension %d: "+
				"start=%d + (count-1)*stride + block = %d > size=%d",
				i, s.Start[i], end, dims[i])
		}
	}

	return nil
}

// LinearIndexAt answers the forward query: where does the dataspace
// coordinate sit inside the selection's compact enumeration?
//
// When coords lies inside a block, it returns the row-major compact index,
// the number of selected elements remaining in the current block along the
// fastest-changing axis (including coords itself), and in=true.
//
// When coords misses the selection only along the fastest-changing axis and
// a further block lies ahead on that axis, it returns in=false with
// maxCount set to the distance until that block begins. Any other miss
// returns (0, 0, false): no selected element lies ahead on this row.
func (s *HyperslabSelection) LinearIndexAt(coords []uint64) (linear, maxCount uint64, in bool) {
	last := len(s.Start) - 1

	for k := 0; k < last; k++ {
		cc, ok := s.compactCoord(k, coords[k])
		if !ok {
			return 0, 0, false
		}
		linear = linear*s.Count[k]*s.Block[k] + cc
	}

	c := coords[last]
	start, stride := s.Start[last], s.Stride[last]
	count, block := s.Count[last], s.Block[last]

	if c < start {
		return 0, start - c, false
	}

	offset := c - start
	blockIdx := offset / stride
	within := offset - blockIdx*stride

	if blockIdx < count && within < block {
		linear = linear*count*block + blockIdx*block + within
		return linear, block - within, true
	}

	next := blockIdx + 1
	if next >= count {
		return 0, 0, false
	}
	return 0, start + next*stride - c, false
}

// compactCoord maps a dataspace coordinate on axis k into the compact
// space, reporting whether it lies inside a block.
func (s *HyperslabSelection) compactCoord(k int, c uint64) (uint64, bool) {
	if c < s.Start[k] {
		return 0, false
	}
	offset := c - s.Start[k]
	blockIdx := offset / s.Stride[k]
	within := offset - blockIdx*s.Stride[k]
	if blockIdx >= s.Count[k] || within >= s.Block[k] {
		return 0, false
	}
	return blockIdx*s.Block[k] + within, true
}

// CoordsAt answers the reverse query: the dataspace coordinates of the
// linear-th element of the compact enumeration, written into coords (which
// must have the selection's rank). The return value is the run length from
// that element to the end of its block along the fastest-changing axis.
func (s *HyperslabSelection) CoordsAt(linear uint64, coords []uint64) (run uint64) {
	rem := linear
	for k := len(s.Start) - 1; k >= 0; k-- {
		compactDim := s.Count[k] * s.Block[k]
		cc := rem % compactDim
		rem /= compactDim

		blockIdx := cc / s.Block[k]
		within := cc - blockIdx*s.Block[k]
		coords[k] = s.Start[k] + blockIdx*s.Stride[k] + within

		if k == len(s.Start)-1 {
			run = s.Block[k] - within
		}
	}
	return run
}

// SelectionStep is one contiguous run of a SteppedSelection: count elements
// along the fastest-changing axis starting at Coords.
type SelectionStep struct {
	Coords []uint64
	Count  uint64
}

// SteppedSelection is an explicit ordered list of element runs. The virtual
// dataset engine builds these to address exactly the source elements that
// back one stretch of the virtual dataspace.
type SteppedSelection struct {
	Steps []SelectionStep
}

// NumElements returns the sum of the step counts.
func (s *SteppedSelection) NumElements([]uint64) (uint64, error) {
	total := uint64(0)
	for i, step := range s.Steps {
		next, err := utils.SafeAdd(total, step.Count)
		if err != nil {
			return 0, fmt.Errorf("stepped selection overflow at step %d: %w", i, err)
		}
		total = next
	}
	return total, nil
}

// linearToCoords converts a row-major linear index into coordinates under
// dims, written into coords (same length as dims).
func linearToCoords(dims []uint64, idx uint64, coords []uint64) {
	for k := len(dims) - 1; k >= 0; k-- {
		coords[k] = idx % dims[k]
		idx /= dims[k]
	}
}

// coordsToLinear converts coordinates under dims into a row-major linear
// index.
func coordsToLinear(dims, coords []uint64) uint64 {
	linear := uint64(0)
	for k := 0; k < len(dims); k++ {
		linear = linear*dims[k] + coords[k]
	}
	return linear
}
