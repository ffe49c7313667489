package hdf5

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sciforge/hdf5/internal/core"
	"github.com/sciforge/hdf5/internal/utils"
)

// Virtual dataset errors surfaced to callers.
var (
	// ErrUnlimitedVirtualDims rejects virtual datasets with unlimited
	// dimensions at construction.
	ErrUnlimitedVirtualDims = errors.New("virtual dataset with unlimited dimensions is not supported")

	// ErrUnsupportedSeek rejects seek origins other than the stream start.
	ErrUnsupportedSeek = errors.New("virtual stream supports seeking from start only")
)

// sourceDataset is the read surface the virtual engine needs from a
// resolved source dataset.
type sourceDataset interface {
	Dims() ([]uint64, error)
	ReadSelection(sel Selection, dst []float64, access *DatasetAccess) error
}

// sourceContainer is the file surface the virtual engine needs for source
// resolution.
type sourceContainer interface {
	LinkExists(path string) bool
	OpenDataset(path string) (sourceDataset, error)
	Close() error
}

// fileContainer adapts *File to the sourceContainer surface.
type fileContainer struct {
	f *File
}

func (fc fileContainer) LinkExists(path string) bool {
	return fc.f.LinkExists(path)
}

func (fc fileContainer) OpenDataset(path string) (sourceDataset, error) {
	return fc.f.DatasetByPath(path)
}

func (fc fileContainer) Close() error {
	return fc.f.Close()
}

// readVirtualFunc reads elements of a resolved source dataset into dst
// according to sel. The engine delegates every covered run through this
// callback; the default implementation calls ReadSelection on the source,
// which re-enters the virtual engine for VDS-of-VDS chains.
type readVirtualFunc func(src sourceDataset, dst []float64, sel *SteppedSelection, access *DatasetAccess) error

// virtualEntry is one mapping with its virtual selection normalized to the
// virtual dataspace. The source selection stays serialized until the source
// dataset (and its dimensions) is resolved.
type virtualEntry struct {
	index         int
	sourceFile    string
	sourceDataset string
	virtualSel    *HyperslabSelection
	sourceSel     core.SerializedSelection
}

// sourceInfo is the cached resolution of one mapping entry.
type sourceInfo struct {
	container sourceContainer
	owned     bool // true when the engine opened the file itself
	dataset   sourceDataset
	selection *HyperslabSelection // source selection over source dims
	access    *DatasetAccess
	scratch   []uint64 // source-rank coordinate scratch
}

// virtualStreamConfig parameterizes stream construction. The open, exists
// and read hooks default to the real implementations and exist so tests can
// drive the engine against stub sources.
type virtualStreamConfig struct {
	dims       []uint64
	fill       float64
	entries    []core.VirtualEntry
	access     *DatasetAccess
	host       sourceContainer
	hostFolder string
	open       func(path string) (sourceContainer, error)
	exists     func(path string) bool
	read       readVirtualFunc
}

// virtualStream assembles reads of a virtual dataset from its source
// mappings. A stream serves one logical read: it walks the virtual
// dataspace in ascending linear order, delegating covered stretches to
// source datasets and substituting the fill value elsewhere.
//
// Streams are not safe for concurrent use and must be closed to release
// source files opened during resolution. The host file is never closed.
type virtualStream struct {
	dims       []uint64
	fill       float64
	entries    []*virtualEntry
	access     *DatasetAccess
	host       sourceContainer
	hostFolder string
	openFn     func(path string) (sourceContainer, error)
	existsFn   func(path string) bool
	readFn     readVirtualFunc

	position int64
	sources  map[int]*sourceInfo
	vcoords  []uint64 // virtual-rank coordinate scratch
	closed   bool
}

// newVirtualStream validates the mapping table and builds a stream.
// Unlimited virtual dimensions and malformed virtual selections fail here;
// source selections are checked lazily at resolution, when the source
// dimensions become known.
func newVirtualStream(cfg virtualStreamConfig) (*virtualStream, error) {
	if len(cfg.dims) == 0 {
		return nil, errors.New("virtual dataset has no dimensions")
	}
	for _, dim := range cfg.dims {
		if dim == core.UnlimitedDim {
			return nil, ErrUnlimitedVirtualDims
		}
	}

	vs := &virtualStream{
		dims:       cfg.dims,
		fill:       cfg.fill,
		access:     cfg.access,
		host:       cfg.host,
		hostFolder: cfg.hostFolder,
		openFn:     cfg.open,
		existsFn:   cfg.exists,
		readFn:     cfg.read,
		sources:    make(map[int]*sourceInfo),
		vcoords:    make([]uint64, len(cfg.dims)),
	}

	if vs.openFn == nil {
		vs.openFn = func(path string) (sourceContainer, error) {
			f, err := Open(path)
			if err != nil {
				return nil, err
			}
			return fileContainer{f}, nil
		}
	}
	if vs.existsFn == nil {
		vs.existsFn = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	if vs.readFn == nil {
		vs.readFn = func(src sourceDataset, dst []float64, sel *SteppedSelection, access *DatasetAccess) error {
			return src.ReadSelection(sel, dst, access)
		}
	}

	for i, e := range cfg.entries {
		vsel, err := hyperslabFromSerialized(e.VirtualSelection, cfg.dims)
		if err != nil {
			return nil, fmt.Errorf("malformed virtual selection in mapping %d: %w", i, err)
		}
		vs.entries = append(vs.entries, &virtualEntry{
			index:         i,
			sourceFile:    e.SourceFile,
			sourceDataset: e.SourceDataset,
			virtualSel:    vsel,
			sourceSel:     e.SourceSelection,
		})
	}

	return vs, nil
}

// hyperslabFromSerialized turns a serialized selection into a validated
// hyperslab over the given dimensions. SelAll becomes a single block
// covering the whole dataspace.
func hyperslabFromSerialized(sel core.SerializedSelection, dims []uint64) (*HyperslabSelection, error) {
	var hs *HyperslabSelection

	switch sel.Type {
	case core.SelAll:
		hs = &HyperslabSelection{
			Start: make([]uint64, len(dims)),
			Count: make([]uint64, len(dims)),
			Block: make([]uint64, len(dims)),
		}
		for i, d := range dims {
			hs.Count[i] = 1
			hs.Block[i] = d
		}

	case core.SelHyperslab:
		hs = &HyperslabSelection{
			Start:  append([]uint64(nil), sel.Start...),
			Stride: append([]uint64(nil), sel.Stride...),
			Count:  append([]uint64(nil), sel.Count...),
			Block:  append([]uint64(nil), sel.Block...),
		}

	default:
		return nil, fmt.Errorf("unsupported selection type %d", sel.Type)
	}

	if err := hs.Validate(dims); err != nil {
		return nil, err
	}
	return hs, nil
}

// Seek repositions the stream. Only io.SeekStart is supported.
func (vs *virtualStream) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return vs.position, ErrUnsupportedSeek
	}
	if offset < 0 {
		return vs.position, fmt.Errorf("negative seek offset %d", offset)
	}
	vs.position = offset
	return vs.position, nil
}

// readVirtual fills dst with the virtual dataset's contents starting at the
// stream position, advancing the position by exactly len(dst) on success.
//
// Each iteration segments the remaining buffer at the current position:
// the first mapping entry (in descriptor order) whose virtual selection
// covers the position wins and serves a run bounded by its block; when no
// entry covers it, the run extends to the nearest upcoming block on the
// fastest-changing axis (or the whole buffer if none) and is filled with
// the fill value. On a downstream read error the position stays at the last
// completed run boundary.
func (vs *virtualStream) readVirtual(dst []float64) error {
	if vs.closed {
		return errors.New("virtual stream is closed")
	}
	//nolint:gosec // G115: position is non-negative by construction
	if _, err := utils.SafeAdd(uint64(vs.position), uint64(len(dst))); err != nil {
		return fmt.Errorf("read range overflow: %w", err)
	}

	for len(dst) > 0 {
		//nolint:gosec // G115: position is non-negative by construction
		linearToCoords(vs.dims, uint64(vs.position), vs.vcoords)

		var chosen *virtualEntry
		var chosenLinear, chosenRun uint64
		minGap := uint64(0)
		for _, e := range vs.entries {
			linear, run, in := e.virtualSel.LinearIndexAt(vs.vcoords)
			if in {
				chosen = e
				chosenLinear, chosenRun = linear, run
				break
			}
			if run > 0 && (minGap == 0 || run < minGap) {
				minGap = run
			}
		}

		remaining := uint64(len(dst))
		var run uint64

		if chosen != nil {
			run = chosenRun
			if remaining < run {
				run = remaining
			}

			src, err := vs.resolve(chosen)
			if err != nil {
				return err
			}
			if src == nil {
				// Unresolvable source: treated as an uncovered region.
				vs.fillRun(dst[:run])
			} else {
				sel := buildSteppedSelection(src, chosenLinear, run)
				if err := vs.readFn(src.dataset, dst[:run], sel, src.access); err != nil {
					return err
				}
			}
		} else {
			run = remaining
			if minGap != 0 && minGap < remaining {
				run = minGap
			}
			vs.fillRun(dst[:run])
		}

		//nolint:gosec // G115: run is bounded by len(dst)
		vs.position += int64(run)
		dst = dst[run:]
	}

	return nil
}

// fillRun writes the fill value over a run.
func (vs *virtualStream) fillRun(dst []float64) {
	for i := range dst {
		dst[i] = vs.fill
	}
}

// buildSteppedSelection translates run elements of the entry's compact
// enumeration, starting at startLinear, into source dataspace steps.
func buildSteppedSelection(src *sourceInfo, startLinear, run uint64) *SteppedSelection {
	var steps []SelectionStep

	idx := startLinear
	remaining := run
	for remaining > 0 {
		r := src.selection.CoordsAt(idx, src.scratch)
		if r > remaining {
			r = remaining
		}
		coords := make([]uint64, len(src.scratch))
		copy(coords, src.scratch)
		steps = append(steps, SelectionStep{Coords: coords, Count: r})

		idx += r
		remaining -= r
	}

	return &SteppedSelection{Steps: steps}
}

// resolve locates and opens the entry's source dataset, memoizing the
// result by entry index. A missing source file or dataset is not an error:
// it returns (nil, nil) and is retried on the next run, so a source that
// appears later can still serve. A file opened for an entry whose dataset
// turns out to be missing is closed before returning.
func (vs *virtualStream) resolve(e *virtualEntry) (*sourceInfo, error) {
	if src, ok := vs.sources[e.index]; ok {
		return src, nil
	}

	container := vs.host
	owned := false

	if e.sourceFile != "." {
		path, found := vs.locateSourceFile(e.sourceFile)
		if !found {
			return nil, nil
		}
		opened, err := vs.openFn(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open source file %q: %w", path, err)
		}
		container = opened
		owned = true
	}

	if !container.LinkExists(e.sourceDataset) {
		if owned {
			_ = container.Close()
		}
		return nil, nil
	}

	dataset, err := container.OpenDataset(e.sourceDataset)
	if err != nil {
		if owned {
			_ = container.Close()
		}
		return nil, fmt.Errorf("failed to open source dataset %q: %w", e.sourceDataset, err)
	}

	sourceDims, err := dataset.Dims()
	if err != nil {
		if owned {
			_ = container.Close()
		}
		return nil, fmt.Errorf("failed to read source dims of %q: %w", e.sourceDataset, err)
	}

	selection, err := hyperslabFromSerialized(e.sourceSel, sourceDims)
	if err != nil {
		if owned {
			_ = container.Close()
		}
		return nil, fmt.Errorf("malformed source selection for %q: %w", e.sourceDataset, err)
	}

	// Per-source chunk cache, so chunk reuse survives across runs of this
	// stream when the caller supplied no cache of their own.
	access := vs.access
	if access == nil || access.ChunkCache == nil {
		access = vs.access.withFreshChunkCache()
	}

	src := &sourceInfo{
		container: container,
		owned:     owned,
		dataset:   dataset,
		selection: selection,
		access:    access,
		scratch:   make([]uint64, len(sourceDims)),
	}
	vs.sources[e.index] = src
	return src, nil
}

// locateSourceFile resolves a source file name to a filesystem path:
// absolute names as-is, then the external file prefix, then the virtual
// file's own folder. The first existing candidate wins.
func (vs *virtualStream) locateSourceFile(name string) (string, bool) {
	if filepath.IsAbs(name) {
		if vs.existsFn(name) {
			return name, true
		}
		return "", false
	}

	if vs.access != nil && vs.access.ExternalFilePrefix != "" {
		candidate := filepath.Join(vs.access.ExternalFilePrefix, name)
		if vs.existsFn(candidate) {
			return candidate, true
		}
	}

	candidate := filepath.Join(vs.hostFolder, name)
	if vs.existsFn(candidate) {
		return candidate, true
	}
	return "", false
}

// Close releases every source file the stream opened itself. Close-time
// errors of individual sources are discarded so one bad source cannot leak
// the others. The host file is never closed. Idempotent.
func (vs *virtualStream) Close() error {
	if vs.closed {
		return nil
	}
	vs.closed = true

	for _, src := range vs.sources {
		if src.owned {
			_ = src.container.Close()
		}
	}
	vs.sources = nil
	return nil
}

// readSelectionVirtual serves a selection read of a virtual dataset: one
// stream per logical read, whole-space streaming for AllSelection, and
// seek-per-run for structured selections.
func (d *Dataset) readSelectionVirtual(sel Selection, dst []float64, access *DatasetAccess, m *datasetMeta) error {
	vs, err := d.newVirtualStreamFromMeta(m, access)
	if err != nil {
		return err
	}
	defer func() { _ = vs.Close() }()

	if _, ok := sel.(AllSelection); ok {
		return vs.readVirtual(dst)
	}

	dims := m.dataspace.Dimensions
	return forEachRun(sel, dims, func(coords []uint64, count, dstOff uint64) error {
		//nolint:gosec // G115: linear positions fit in int64 for supported dataspaces
		if _, err := vs.Seek(int64(coordsToLinear(dims, coords)), io.SeekStart); err != nil {
			return err
		}
		return vs.readVirtual(dst[dstOff : dstOff+count])
	})
}

// newVirtualStreamFromMeta decodes the mapping descriptor from the global
// heap and constructs the stream for this dataset.
func (d *Dataset) newVirtualStreamFromMeta(m *datasetMeta, access *DatasetAccess) (*virtualStream, error) {
	if m.dataspace.HasUnlimited() {
		return nil, ErrUnlimitedVirtualDims
	}

	collection, err := core.ReadGlobalHeapCollection(
		d.file.osFile, m.layout.VirtualHeapAddress, int(d.file.sb.OffsetSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read virtual storage heap: %w", err)
	}

	obj, err := collection.GetObject(m.layout.VirtualHeapIndex)
	if err != nil {
		return nil, fmt.Errorf("virtual storage object missing: %w", err)
	}

	entries, err := core.ParseVirtualStorage(obj.Data, int(d.file.sb.LengthSize), d.file.sb.Endianness)
	if err != nil {
		return nil, fmt.Errorf("failed to parse virtual storage: %w", err)
	}

	return newVirtualStream(virtualStreamConfig{
		dims:       m.dataspace.Dimensions,
		fill:       m.fillFloat64(),
		entries:    entries,
		access:     access,
		host:       fileContainer{d.file},
		hostFolder: d.file.FolderPath(),
	})
}

// VirtualMapping describes one entry of a virtual dataset's mapping table,
// as reported by VirtualMappings.
type VirtualMapping struct {
	SourceFile       string
	SourceDataset    string
	VirtualSelection string
	SourceSelection  string
}

// IsVirtual reports whether the dataset uses the virtual storage layout.
func (d *Dataset) IsVirtual() (bool, error) {
	m, err := d.meta()
	if err != nil {
		return false, err
	}
	return m.layout.IsVirtual(), nil
}

// VirtualMappings returns the dataset's mapping table in descriptor order.
// Returns an error when the dataset is not virtual.
func (d *Dataset) VirtualMappings() ([]VirtualMapping, error) {
	m, err := d.meta()
	if err != nil {
		return nil, err
	}
	if !m.layout.IsVirtual() {
		return nil, errors.New("dataset is not virtual")
	}

	collection, err := core.ReadGlobalHeapCollection(
		d.file.osFile, m.layout.VirtualHeapAddress, int(d.file.sb.OffsetSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read virtual storage heap: %w", err)
	}
	obj, err := collection.GetObject(m.layout.VirtualHeapIndex)
	if err != nil {
		return nil, fmt.Errorf("virtual storage object missing: %w", err)
	}
	entries, err := core.ParseVirtualStorage(obj.Data, int(d.file.sb.LengthSize), d.file.sb.Endianness)
	if err != nil {
		return nil, fmt.Errorf("failed to parse virtual storage: %w", err)
	}

	mappings := make([]VirtualMapping, len(entries))
	for i, e := range entries {
		mappings[i] = VirtualMapping{
			SourceFile:       e.SourceFile,
			SourceDataset:    e.SourceDataset,
			VirtualSelection: describeSelection(e.VirtualSelection),
			SourceSelection:  describeSelection(e.SourceSelection),
		}
	}
	return mappings, nil
}

// describeSelection renders a serialized selection for display.
func describeSelection(sel core.SerializedSelection) string {
	switch sel.Type {
	case core.SelAll:
		return "all"
	case core.SelHyperslab:
		return fmt.Sprintf("hyperslab{start=%v stride=%v count=%v block=%v}",
			sel.Start, sel.Stride, sel.Count, sel.Block)
	default:
		return fmt.Sprintf("selection type %d", sel.Type)
	}
}
