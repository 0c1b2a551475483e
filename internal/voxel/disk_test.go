package voxel

import (
	"reflect"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	disk := NewDiskStore(t.TempDir())
	coord := ChunkCoord{X: -2, Y: 5, Z: 0}

	ch := NewChunk(8)
	for i := 0; i < 100; i += 5 {
		ch.setIndex(i, Cell{Material: uint16(i%4 + 1), R: uint8(i), A: 255})
	}

	if err := disk.Save(coord, ch); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := disk.Load(coord)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("saved chunk not found")
	}
	if loaded.Edge() != 8 {
		t.Fatalf("loaded edge %d, want 8", loaded.Edge())
	}
	if !reflect.DeepEqual(ch.Cells(), loaded.Cells()) {
		t.Fatal("loaded cell grid differs from saved")
	}
}

func TestDiskStoreLoadAbsent(t *testing.T) {
	disk := NewDiskStore(t.TempDir())
	_, ok, err := disk.Load(ChunkCoord{X: 9, Y: 9, Z: 9})
	if err != nil {
		t.Fatalf("load absent: %v", err)
	}
	if ok {
		t.Fatal("absent chunk reported as present")
	}
}

func TestDiskStoreSaveDirtyAcks(t *testing.T) {
	disk := NewDiskStore(t.TempDir())
	s, _ := NewStore(8, StoreOptions{})
	if err := s.WriteVoxel(Pos{X: 0, Y: 0, Z: 0}, Cell{Material: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteVoxel(Pos{X: 10, Y: 0, Z: 0}, Cell{Material: 2}); err != nil {
		t.Fatal(err)
	}

	saved, err := disk.SaveDirty(s)
	if err != nil {
		t.Fatalf("save dirty: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("saved %d chunks, want 2", len(saved))
	}

	remaining := 0
	s.ForEachDirtyChunk(func(coord ChunkCoord, ch *Chunk) bool {
		remaining++
		return true
	})
	if remaining != 0 {
		t.Fatalf("%d chunks still dirty after save", remaining)
	}

	for _, coord := range saved {
		if _, ok, err := disk.Load(coord); err != nil || !ok {
			t.Fatalf("chunk %v missing on disk: ok=%v err=%v", coord, ok, err)
		}
	}
}

func TestDiskStoreDelete(t *testing.T) {
	disk := NewDiskStore(t.TempDir())
	coord := ChunkCoord{X: 0, Y: 0, Z: 0}
	if err := disk.Save(coord, NewChunk(4)); err != nil {
		t.Fatal(err)
	}
	if err := disk.Delete(coord); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := disk.Load(coord); ok {
		t.Fatal("deleted chunk still present")
	}
	// Deleting twice is not an error.
	if err := disk.Delete(coord); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}
