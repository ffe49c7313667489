// Package hdf5 provides a pure Go implementation for reading HDF5 files,
// including datasets with compact, contiguous, chunked and virtual (VDS)
// storage layouts.
package hdf5

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sciforge/hdf5/internal/core"
	"github.com/sciforge/hdf5/internal/utils"
)

// File represents an open HDF5 file with its metadata and root group.
type File struct {
	osFile *os.File
	path   string
	sb     *core.Superblock
	root   *Group
}

// Open opens an HDF5 file for reading and returns a File handle.
// The file must be a valid HDF5 file with a supported format version.
func Open(filename string) (*File, error) {
	//nolint:gosec // G304: User-provided filename is intentional for HDF5 file library
	f, err := os.Open(filename)
	if err != nil {
		return nil, utils.WrapError("file open failed", err)
	}

	if !isHDF5File(f) {
		_ = f.Close()
		return nil, errors.New("not an HDF5 file")
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, utils.WrapError("file stat failed", err)
	}
	fileSize := fi.Size()

	sb, err := core.ReadSuperblock(f)
	if err != nil {
		_ = f.Close()
		return nil, utils.WrapError("superblock read failed", err)
	}

	file := &File{
		osFile: f,
		path:   filename,
		sb:     sb,
	}

	//nolint:gosec // G115: File size is always positive, safe to convert int64 to uint64
	if sb.RootGroup >= uint64(fileSize) {
		_ = f.Close()
		return nil, fmt.Errorf("root group address %d beyond file size %d",
			sb.RootGroup, fileSize)
	}

	file.root, err = loadGroup(file, sb.RootGroup)
	if err != nil {
		_ = f.Close()
		return nil, utils.WrapError("root group load failed", err)
	}

	// Root group name may be empty in the object header.
	file.root.name = "/"

	return file, nil
}

// isHDF5File verifies HDF5 file signature.
func isHDF5File(r utils.ReaderAt) bool {
	buf := utils.GetBuffer(8)
	defer utils.ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, 0); err != nil {
		return false
	}
	return string(buf) == core.Signature
}

// Close closes the HDF5 file and releases associated resources.
// It is safe to call Close multiple times.
func (f *File) Close() error {
	if f.osFile == nil {
		return nil // Already closed.
	}
	err := f.osFile.Close()
	f.osFile = nil // Prevent double close.
	return err
}

// Root returns the root group of the HDF5 file.
func (f *File) Root() *Group {
	return f.root
}

// FolderPath returns the directory containing the file. Virtual dataset
// source resolution uses it to locate relative source files.
func (f *File) FolderPath() string {
	return filepath.Dir(f.path)
}

// DatasetByPath looks up a dataset by its slash-separated path from the
// root group, e.g. "/group/subgroup/data".
func (f *File) DatasetByPath(path string) (*Dataset, error) {
	obj, err := f.objectByPath(path)
	if err != nil {
		return nil, err
	}
	ds, ok := obj.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("object %q is not a dataset", path)
	}
	return ds, nil
}

// LinkExists reports whether an object (group or dataset) exists at the
// given slash-separated path.
func (f *File) LinkExists(path string) bool {
	_, err := f.objectByPath(path)
	return err == nil
}

// objectByPath descends the group tree segment by segment.
func (f *File) objectByPath(path string) (Object, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return f.root, nil
	}

	var current Object = f.root
	for _, segment := range strings.Split(trimmed, "/") {
		group, ok := current.(*Group)
		if !ok {
			return nil, fmt.Errorf("path %q descends into a non-group object", path)
		}

		var next Object
		for _, child := range group.Children() {
			if child.Name() == segment {
				next = child
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("object %q not found", path)
		}
		current = next
	}

	return current, nil
}

// Walk traverses the entire file structure, calling fn for each object.
// Objects are visited in depth-first order starting from the root group.
func (f *File) Walk(fn func(path string, obj Object)) {
	walkGroup(f.root, "/", fn)
}

func walkGroup(g *Group, currentPath string, fn func(string, Object)) {
	fn(currentPath, g)

	for _, child := range g.Children() {
		childPath := currentPath + child.Name()

		if childGroup, ok := child.(*Group); ok {
			walkGroup(childGroup, childPath+"/", fn)
		} else {
			fn(childPath, child)
		}
	}
}

// SuperblockVersion returns the HDF5 superblock format version (0, 2, or 3).
func (f *File) SuperblockVersion() uint8 {
	return f.sb.Version
}

// Reader returns the underlying file reader for low-level access.
func (f *File) Reader() io.ReaderAt {
	return f.osFile
}

// readSignature reads 4 bytes at address and returns them as a string.
func readSignature(r io.ReaderAt, address uint64) string {
	buf := make([]byte, 4)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(buf, int64(address)); err != nil {
		return ""
	}
	return string(buf)
}
