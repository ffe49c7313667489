package hdf5

import (
	"errors"
	"fmt"

	"github.com/sciforge/hdf5/internal/core"
	"github.com/sciforge/hdf5/internal/utils"
)

// datasetMeta bundles the parsed messages a read needs.
type datasetMeta struct {
	datatype  *core.DatatypeMessage
	dataspace *core.DataspaceMessage
	layout    *core.DataLayoutMessage
	fillValue *core.FillValueMessage
	filtered  bool
}

// meta reads the dataset's object header and parses its read-relevant
// messages.
func (d *Dataset) meta() (*datasetMeta, error) {
	header, err := core.ReadObjectHeader(d.file.osFile, d.address, d.file.sb)
	if err != nil {
		return nil, fmt.Errorf("failed to read object header: %w", err)
	}

	datatypeMsg := header.FindMessage(core.MsgDatatype)
	dataspaceMsg := header.FindMessage(core.MsgDataspace)
	layoutMsg := header.FindMessage(core.MsgDataLayout)
	if datatypeMsg == nil {
		return nil, errors.New("datatype message not found")
	}
	if dataspaceMsg == nil {
		return nil, errors.New("dataspace message not found")
	}
	if layoutMsg == nil {
		return nil, errors.New("data layout message not found")
	}

	m := &datasetMeta{
		filtered: header.FindMessage(core.MsgFilterPipeline) != nil,
	}

	m.datatype, err = core.ParseDatatypeMessage(datatypeMsg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse datatype: %w", err)
	}

	m.dataspace, err = core.ParseDataspaceMessage(dataspaceMsg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataspace: %w", err)
	}

	m.layout, err = core.ParseDataLayoutMessage(layoutMsg.Data, d.file.sb)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	if fvMsg := header.FindMessage(core.MsgFillValue); fvMsg != nil {
		// A malformed fill value degrades to the zero fill, not a failure.
		m.fillValue, _ = core.ParseFillValueMessage(fvMsg.Data)
	}

	return m, nil
}

// fillFloat64 returns the dataset's fill value as float64 (zero when the
// file defines none).
func (m *datasetMeta) fillFloat64() float64 {
	v, ok := m.fillValue.Float64(m.datatype)
	if !ok {
		return 0
	}
	return v
}

// Dims returns the dataset's dimensions (slowest-changing first).
func (d *Dataset) Dims() ([]uint64, error) {
	m, err := d.meta()
	if err != nil {
		return nil, err
	}
	dims := make([]uint64, len(m.dataspace.Dimensions))
	copy(dims, m.dataspace.Dimensions)
	return dims, nil
}

// Info returns a human-readable metadata summary of the dataset.
func (d *Dataset) Info() (string, error) {
	m, err := d.meta()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Dataset: %s, %s, %s", m.datatype, m.dataspace, m.layout), nil
}

// Read reads the entire dataset and returns values as a float64 array.
// Currently supports float64, float32 and signed or unsigned 32/64-bit
// integer datatypes; all values are converted to float64 for convenience.
func (d *Dataset) Read() ([]float64, error) {
	m, err := d.meta()
	if err != nil {
		return nil, err
	}

	total := m.dataspace.TotalElements()
	if total == 0 {
		return []float64{}, nil
	}
	if err := utils.ValidateBufferSize(total, utils.MaxSelectionElements, "dataset"); err != nil {
		return nil, err
	}

	dst := make([]float64, total)
	if err := d.readSelection(AllSelection{}, dst, nil, m); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReadSelection reads the elements picked by sel into dst, which must hold
// at least sel.NumElements values. The access argument is optional.
func (d *Dataset) ReadSelection(sel Selection, dst []float64, access *DatasetAccess) error {
	m, err := d.meta()
	if err != nil {
		return err
	}
	return d.readSelection(sel, dst, access, m)
}

func (d *Dataset) readSelection(sel Selection, dst []float64, access *DatasetAccess, m *datasetMeta) error {
	dims := m.dataspace.Dimensions

	if hs, ok := sel.(*HyperslabSelection); ok {
		if err := hs.Validate(dims); err != nil {
			return fmt.Errorf("invalid selection: %w", err)
		}
	}

	n, err := sel.NumElements(dims)
	if err != nil {
		return fmt.Errorf("invalid selection: %w", err)
	}
	if n == 0 {
		return nil
	}
	if uint64(len(dst)) < n {
		return fmt.Errorf("destination buffer too small: %d elements, selection has %d", len(dst), n)
	}
	dst = dst[:n]

	switch {
	case m.layout.IsCompact():
		return d.readSelectionCompact(sel, dst, m)
	case m.layout.IsContiguous():
		return d.readSelectionContiguous(sel, dst, m)
	case m.layout.IsChunked():
		return d.readSelectionChunked(sel, dst, access, m)
	case m.layout.IsVirtual():
		return d.readSelectionVirtual(sel, dst, access, m)
	default:
		return fmt.Errorf("unsupported layout class: %d", m.layout.Class)
	}
}

// forEachRun drives a selection as a sequence of contiguous element runs
// along the fastest-changing axis. fn receives the run's starting
// coordinates (scratch, valid only during the call), its length, and the
// destination offset of its first element.
func forEachRun(sel Selection, dims []uint64, fn func(coords []uint64, count, dstOff uint64) error) error {
	switch s := sel.(type) {
	case AllSelection:
		total, err := utils.ProductDims(dims)
		if err != nil {
			return err
		}
		if total == 0 {
			return nil
		}
		row := dims[len(dims)-1]
		coords := make([]uint64, len(dims))
		for lin := uint64(0); lin < total; lin += row {
			linearToCoords(dims, lin, coords)
			if err := fn(coords, row, lin); err != nil {
				return err
			}
		}
		return nil

	case *HyperslabSelection:
		total, err := utils.ProductDims(s.CompactDims())
		if err != nil {
			return err
		}
		coords := make([]uint64, s.Rank())
		for lin := uint64(0); lin < total; {
			run := s.CoordsAt(lin, coords)
			if err := fn(coords, run, lin); err != nil {
				return err
			}
			lin += run
		}
		return nil

	case *SteppedSelection:
		off := uint64(0)
		for _, step := range s.Steps {
			if err := fn(step.Coords, step.Count, off); err != nil {
				return err
			}
			off += step.Count
		}
		return nil

	default:
		return fmt.Errorf("unsupported selection type %T", sel)
	}
}

// readSelectionCompact extracts runs from data stored inside the layout
// message itself.
func (d *Dataset) readSelectionCompact(sel Selection, dst []float64, m *datasetMeta) error {
	raw := m.layout.CompactData
	elemSize := uint64(m.datatype.Size)
	dims := m.dataspace.Dimensions

	return forEachRun(sel, dims, func(coords []uint64, count, dstOff uint64) error {
		offset := coordsToLinear(dims, coords) * elemSize
		if offset+count*elemSize > uint64(len(raw)) {
			return errors.New("compact data truncated")
		}
		return convertInto(dst[dstOff:dstOff+count], raw[offset:], m.datatype)
	})
}

// readSelectionContiguous reads each run with one positioned read.
func (d *Dataset) readSelectionContiguous(sel Selection, dst []float64, m *datasetMeta) error {
	elemSize := uint64(m.datatype.Size)
	dims := m.dataspace.Dimensions

	var scratch []byte
	return forEachRun(sel, dims, func(coords []uint64, count, dstOff uint64) error {
		byteCount := count * elemSize
		if uint64(cap(scratch)) < byteCount {
			scratch = make([]byte, byteCount)
		}
		buf := scratch[:byteCount]

		fileOffset := m.layout.DataAddress + coordsToLinear(dims, coords)*elemSize
		//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
		if _, err := d.file.osFile.ReadAt(buf, int64(fileOffset)); err != nil {
			return fmt.Errorf("failed to read contiguous data: %w", err)
		}
		return convertInto(dst[dstOff:dstOff+count], buf, m.datatype)
	})
}

// readSelectionChunked resolves runs against the chunk index, reading and
// caching whole chunks. Missing chunks yield the dataset's fill value.
func (d *Dataset) readSelectionChunked(sel Selection, dst []float64, access *DatasetAccess, m *datasetMeta) error {
	if m.filtered {
		return errors.New("filter pipelines are not supported")
	}

	dims := m.dataspace.Dimensions
	rank := len(dims)
	elemSize := uint64(m.datatype.Size)

	// The layout's chunk dimensionality carries a trailing datatype-size
	// dimension (see H5Dbtree.c); drop it for element arithmetic.
	if len(m.layout.ChunkSize) < rank {
		return errors.New("chunk dimensionality below dataset rank")
	}
	chunkDims := m.layout.ChunkSize[:rank]

	chunkBytes, err := utils.SafeMultiply(chunkElements(chunkDims), elemSize)
	if err != nil {
		return fmt.Errorf("chunk size overflow: %w", err)
	}
	if err := utils.ValidateBufferSize(chunkBytes, utils.MaxChunkSize, "chunk"); err != nil {
		return fmt.Errorf("chunk too large: %w", err)
	}

	chunks, err := core.CollectChunks(d.file.osFile, m.layout.DataAddress, d.file.sb, len(m.layout.ChunkSize))
	if err != nil {
		return fmt.Errorf("failed to collect chunks: %w", err)
	}
	index := make(map[string]core.ChunkInfo, len(chunks))
	for _, c := range chunks {
		index[chunkCacheKey(c.Offsets[:rank])] = c
	}

	cache := (*ChunkCache)(nil)
	if access != nil {
		cache = access.ChunkCache
	}
	if cache == nil {
		// Private per-read cache so runs within one selection still reuse
		// decoded chunks.
		cache = NewChunkCache(DefaultChunkCacheSlots)
	}

	fill := m.fillFloat64()
	last := rank - 1
	cc := make([]uint64, rank)
	origin := make([]uint64, rank)
	rel := make([]uint64, rank)

	return forEachRun(sel, dims, func(coords []uint64, count, dstOff uint64) error {
		copy(cc, coords)
		remaining := count

		for remaining > 0 {
			for i := 0; i < rank; i++ {
				origin[i] = cc[i] - cc[i]%chunkDims[i]
			}
			room := origin[last] + chunkDims[last] - cc[last]
			seg := remaining
			if room < seg {
				seg = room
			}

			data := cache.get(origin)
			if data == nil {
				if info, ok := index[chunkCacheKey(origin)]; ok {
					if uint64(info.Nbytes) != chunkBytes {
						return fmt.Errorf("chunk at %v has %d bytes, expected %d (compressed chunks unsupported)",
							origin, info.Nbytes, chunkBytes)
					}
					data = make([]byte, info.Nbytes)
					//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
					if _, err := d.file.osFile.ReadAt(data, int64(info.Address)); err != nil {
						return fmt.Errorf("failed to read chunk at 0x%x: %w", info.Address, err)
					}
					cache.put(origin, data)
				}
			}

			if data == nil {
				// Unallocated chunk: substitute the fill value.
				for i := dstOff; i < dstOff+seg; i++ {
					dst[i] = fill
				}
			} else {
				for i := 0; i < rank; i++ {
					rel[i] = cc[i] - origin[i]
				}
				relOff := coordsToLinear(chunkDims, rel) * elemSize
				if err := convertInto(dst[dstOff:dstOff+seg], data[relOff:], m.datatype); err != nil {
					return err
				}
			}

			dstOff += seg
			remaining -= seg
			cc[last] += seg
		}
		return nil
	})
}

// chunkElements multiplies chunk dimensions (validated elsewhere).
func chunkElements(chunkDims []uint64) uint64 {
	total := uint64(1)
	for _, d := range chunkDims {
		total *= d
	}
	return total
}

// convertInto decodes len(dst) consecutive elements from raw into dst.
func convertInto(dst []float64, raw []byte, dt *core.DatatypeMessage) error {
	elemSize := uint64(dt.Size)
	if uint64(len(raw)) < uint64(len(dst))*elemSize {
		return errors.New("raw data truncated")
	}
	for i := range dst {
		v, err := dt.DecodeFloat64(raw[uint64(i)*elemSize:])
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}
