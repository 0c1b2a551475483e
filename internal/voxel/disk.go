package voxel

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Chunk file layout: 4-byte magic, 2-byte format version, 3 little-endian
// int32 chunk coordinates, a 2-byte edge length, then the RLE payload
// produced by Chunk.Encode.
var chunkMagic = [4]byte{'V', 'X', 'L', 'C'}

const chunkFormatVersion uint16 = 1

// DiskStore persists chunks beneath a base directory, one file per
// chunk at <base>/<x>/<y>/<z>.vxc.
type DiskStore struct {
	basePath string
}

// NewDiskStore creates a disk store rooted at basePath.
func NewDiskStore(basePath string) *DiskStore {
	return &DiskStore{basePath: basePath}
}

func (d *DiskStore) chunkPath(coord ChunkCoord) string {
	dir := filepath.Join(d.basePath, strconv.Itoa(coord.X), strconv.Itoa(coord.Y))
	return filepath.Join(dir, strconv.Itoa(coord.Z)+".vxc")
}

// Save writes one chunk record, replacing any existing file.
func (d *DiskStore) Save(coord ChunkCoord, ch *Chunk) error {
	path := d.chunkPath(coord)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chunk directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open chunk file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 20)
	copy(header[0:4], chunkMagic[:])
	binary.LittleEndian.PutUint16(header[4:6], chunkFormatVersion)
	binary.LittleEndian.PutUint32(header[6:10], uint32(int32(coord.X)))
	binary.LittleEndian.PutUint32(header[10:14], uint32(int32(coord.Y)))
	binary.LittleEndian.PutUint32(header[14:18], uint32(int32(coord.Z)))
	binary.LittleEndian.PutUint16(header[18:20], uint16(ch.Edge()))

	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("write chunk header: %w", err)
	}
	if _, err := f.Write(ch.Encode()); err != nil {
		return fmt.Errorf("write chunk payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync chunk file: %w", err)
	}
	return nil
}

// Load reads a chunk record back. Absent files report ok=false with a
// nil error.
func (d *DiskStore) Load(coord ChunkCoord) (*Chunk, bool, error) {
	data, err := os.ReadFile(d.chunkPath(coord))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read chunk file: %w", err)
	}
	ch, err := decodeChunkRecord(coord, data)
	if err != nil {
		return nil, false, err
	}
	return ch, true, nil
}

func decodeChunkRecord(coord ChunkCoord, data []byte) (*Chunk, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("chunk %v: %w", coord, io.ErrUnexpectedEOF)
	}
	if [4]byte(data[0:4]) != chunkMagic {
		return nil, fmt.Errorf("chunk %v: bad magic", coord)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != chunkFormatVersion {
		return nil, fmt.Errorf("chunk %v: unsupported format version %d", coord, v)
	}
	got := ChunkCoord{
		X: int(int32(binary.LittleEndian.Uint32(data[6:10]))),
		Y: int(int32(binary.LittleEndian.Uint32(data[10:14]))),
		Z: int(int32(binary.LittleEndian.Uint32(data[14:18]))),
	}
	if got != coord {
		return nil, fmt.Errorf("chunk %v: file records coordinate %v", coord, got)
	}
	edge := int(binary.LittleEndian.Uint16(data[18:20]))
	ch, err := DecodeChunk(edge, data[20:])
	if err != nil {
		return nil, fmt.Errorf("chunk %v: %w", coord, err)
	}
	return ch, nil
}

// Delete removes a chunk record if present.
func (d *DiskStore) Delete(coord ChunkCoord) error {
	if err := os.Remove(d.chunkPath(coord)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete chunk file: %w", err)
	}
	return nil
}

// SaveDirty persists every dirty chunk in the store and acknowledges
// each successful write. It returns the coordinates saved.
func (d *DiskStore) SaveDirty(s *Store) ([]ChunkCoord, error) {
	var saved []ChunkCoord
	var failure error
	s.ForEachDirtyChunk(func(coord ChunkCoord, ch *Chunk) bool {
		if err := d.Save(coord, ch); err != nil {
			failure = fmt.Errorf("save chunk %v: %w", coord, err)
			return false
		}
		s.AckClean(coord)
		saved = append(saved, coord)
		return true
	})
	return saved, failure
}
