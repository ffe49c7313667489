package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

// GlobalHeapCollection represents a global heap collection (GCOL).
// Format reference: H5HGpkg.h.
type GlobalHeapCollection struct {
	Address uint64             // File address of this collection.
	Size    uint64             // Total size of collection in bytes.
	Objects []GlobalHeapObject // Array of heap objects.
}

// GlobalHeapObject represents a single object in the global heap.
type GlobalHeapObject struct {
	Index int    // Object index within collection.
	Size  uint64 // Size of object data.
	Data  []byte // Actual object data.
	NRefs uint16 // Reference count.
}

// ReadGlobalHeapCollection reads a global heap collection from the file.
// Collection format:
//   - Signature (4 bytes): "GCOL".
//   - Version (1 byte): always 1.
//   - Reserved (3 bytes).
//   - Collection size (offset_size bytes).
//
// Then heap objects, each with:
//   - Object ID (2 bytes), reference count (2 bytes), reserved (4 bytes).
//   - Object size (offset_size bytes).
//   - Object data (size bytes, aligned to an 8-byte boundary).
func ReadGlobalHeapCollection(r io.ReaderAt, address uint64, offsetSize int) (*GlobalHeapCollection, error) {
	if offsetSize != 4 && offsetSize != 8 {
		return nil, fmt.Errorf("invalid offset size: %d (must be 4 or 8)", offsetSize)
	}

	headerSize := 4 + 1 + 3 + offsetSize
	headerBuf := make([]byte, headerSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(headerBuf, int64(address)); err != nil {
		return nil, fmt.Errorf("failed to read global heap header: %w", err)
	}

	if string(headerBuf[0:4]) != "GCOL" {
		return nil, fmt.Errorf("invalid global heap signature: %q (expected GCOL)", string(headerBuf[0:4]))
	}

	if version := headerBuf[4]; version != 1 {
		return nil, fmt.Errorf("unsupported global heap version: %d", version)
	}

	var collectionSize uint64
	if offsetSize == 8 {
		collectionSize = binary.LittleEndian.Uint64(headerBuf[8:16])
	} else {
		collectionSize = uint64(binary.LittleEndian.Uint32(headerBuf[8:12]))
	}

	//nolint:gosec // G115: Safe conversion for HDF5 structure sizes
	if collectionSize < uint64(headerSize) {
		return nil, fmt.Errorf("invalid collection size: %d (too small)", collectionSize)
	}

	collectionData := make([]byte, collectionSize)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(collectionData, int64(address)); err != nil {
		return nil, fmt.Errorf("failed to read global heap collection: %w", err)
	}

	collection := &GlobalHeapCollection{
		Address: address,
		Size:    collectionSize,
	}

	// Objects start after the header, aligned to an 8-byte boundary.
	offset := align8(headerSize)

	for offset < len(collectionData) {
		objHeaderSize := 2 + 2 + 4 + offsetSize
		if offset+objHeaderSize > len(collectionData) {
			break
		}

		objID := binary.LittleEndian.Uint16(collectionData[offset : offset+2])
		nRefs := binary.LittleEndian.Uint16(collectionData[offset+2 : offset+4])

		var objSize uint64
		if offsetSize == 8 {
			objSize = binary.LittleEndian.Uint64(collectionData[offset+8 : offset+16])
		} else {
			objSize = uint64(binary.LittleEndian.Uint32(collectionData[offset+8 : offset+12]))
		}

		// Object ID 0 is the free space object.
		if objID == 0 {
			//nolint:gosec // G115: Safe conversion for HDF5 structure sizes
			offset += objHeaderSize + align8(int(objSize))
			continue
		}

		dataStart := offset + objHeaderSize
		//nolint:gosec // G115: Safe conversion for HDF5 object sizes
		if dataStart+int(objSize) > len(collectionData) {
			return nil, fmt.Errorf("object %d data extends beyond collection", objID)
		}

		objData := make([]byte, objSize)
		//nolint:gosec // G115: Safe conversion for HDF5 object sizes
		copy(objData, collectionData[dataStart:dataStart+int(objSize)])

		collection.Objects = append(collection.Objects, GlobalHeapObject{
			Index: int(objID),
			Size:  objSize,
			Data:  objData,
			NRefs: nRefs,
		})

		//nolint:gosec // G115: Safe conversion for HDF5 structure sizes
		offset += objHeaderSize + align8(int(objSize))
	}

	return collection, nil
}

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	if n%8 != 0 {
		n += 8 - n%8
	}
	return n
}

// GetObject retrieves an object from the collection by index.
func (gc *GlobalHeapCollection) GetObject(index uint32) (*GlobalHeapObject, error) {
	for i := range gc.Objects {
		if gc.Objects[i].Index == int(index) {
			return &gc.Objects[i], nil
		}
	}
	return nil, fmt.Errorf("object with index %d not found in collection", index)
}
