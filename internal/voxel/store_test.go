package voxel

import (
	"errors"
	"testing"
)

func TestStoreReadWriteVoxel(t *testing.T) {
	s, err := NewStore(16, StoreOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	cell := Cell{Material: 7, R: 10, G: 20, B: 30, A: 255}
	positions := []Pos{
		{X: 0, Y: 0, Z: 0},
		{X: 15, Y: 15, Z: 15},
		{X: 16, Y: 0, Z: 0},
		{X: -1, Y: -17, Z: 5},
	}
	for _, p := range positions {
		if err := s.WriteVoxel(p, cell); err != nil {
			t.Fatalf("write %v: %v", p, err)
		}
		got, err := s.ReadVoxel(p)
		if err != nil {
			t.Fatalf("read %v: %v", p, err)
		}
		if got != cell {
			t.Fatalf("read %v returned %+v, want %+v", p, got, cell)
		}
	}

	// Negative coordinates land in distinct chunks from positive ones.
	if s.ChunkCount() != 3 {
		t.Fatalf("chunk count %d, want 3", s.ChunkCount())
	}

	// Absent chunks read as empty.
	got, err := s.ReadVoxel(Pos{X: 1000, Y: 1000, Z: 1000})
	if err != nil {
		t.Fatalf("read absent: %v", err)
	}
	if !got.Empty() {
		t.Fatalf("absent chunk read non-empty cell %+v", got)
	}
	if s.ChunkCount() != 3 {
		t.Fatal("read of absent coordinate materialized a chunk")
	}
}

func TestStoreMaterializeOnGet(t *testing.T) {
	coord := ChunkCoord{X: 1, Y: 2, Z: 3}

	lazy, _ := NewStore(8, StoreOptions{})
	ch, err := lazy.Chunk(coord)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if ch != nil {
		t.Fatal("expected nil chunk without materializeOnGet")
	}

	eager, _ := NewStore(8, StoreOptions{MaterializeOnGet: true})
	ch, err = eager.Chunk(coord)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if ch == nil {
		t.Fatal("expected materialized chunk")
	}
	if eager.ChunkCount() != 1 {
		t.Fatalf("chunk count %d, want 1", eager.ChunkCount())
	}
}

func TestStoreBounds(t *testing.T) {
	s, _ := NewStore(8, StoreOptions{
		Bounds: &ChunkBounds{
			Min: ChunkCoord{X: 0, Y: 0, Z: 0},
			Max: ChunkCoord{X: 1, Y: 1, Z: 1},
		},
	})

	if err := s.WriteVoxel(Pos{X: 15, Y: 15, Z: 15}, Cell{Material: 1}); err != nil {
		t.Fatalf("write inside bounds: %v", err)
	}
	err := s.WriteVoxel(Pos{X: 100, Y: 0, Z: 0}, Cell{Material: 1})
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := s.ReadVoxel(Pos{X: -1, Y: 0, Z: 0}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds on read, got %v", err)
	}
	if _, err := s.Chunk(ChunkCoord{X: 2, Y: 0, Z: 0}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds on chunk, got %v", err)
	}
}

func TestStoreDirtyTracking(t *testing.T) {
	s, _ := NewStore(8, StoreOptions{})
	a := Pos{X: 0, Y: 0, Z: 0}
	b := Pos{X: 20, Y: 0, Z: 0}
	if err := s.WriteVoxel(a, Cell{Material: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteVoxel(b, Cell{Material: 2}); err != nil {
		t.Fatal(err)
	}

	dirty := make(map[ChunkCoord]bool)
	s.ForEachDirtyChunk(func(coord ChunkCoord, ch *Chunk) bool {
		dirty[coord] = true
		return true
	})
	if len(dirty) != 2 {
		t.Fatalf("dirty chunk count %d, want 2", len(dirty))
	}

	// Dirty flags are cleared only by explicit acknowledgment.
	s.ForEachDirtyChunk(func(coord ChunkCoord, ch *Chunk) bool { return true })
	count := 0
	s.ForEachDirtyChunk(func(coord ChunkCoord, ch *Chunk) bool {
		count++
		return true
	})
	if count != 2 {
		t.Fatalf("iteration cleared dirty flags: count %d, want 2", count)
	}

	s.AckClean(LocateChunk(a, 8))
	count = 0
	s.ForEachDirtyChunk(func(coord ChunkCoord, ch *Chunk) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("dirty count after ack %d, want 1", count)
	}

	// A new write re-marks the chunk dirty.
	if err := s.WriteVoxel(a, Cell{Material: 3}); err != nil {
		t.Fatal(err)
	}
	count = 0
	s.ForEachDirtyChunk(func(coord ChunkCoord, ch *Chunk) bool {
		count++
		return true
	})
	if count != 2 {
		t.Fatalf("dirty count after rewrite %d, want 2", count)
	}
}

func TestLocateChunkNegative(t *testing.T) {
	cases := []struct {
		pos  Pos
		want ChunkCoord
	}{
		{Pos{X: 0, Y: 0, Z: 0}, ChunkCoord{X: 0, Y: 0, Z: 0}},
		{Pos{X: 31, Y: 31, Z: 31}, ChunkCoord{X: 0, Y: 0, Z: 0}},
		{Pos{X: 32, Y: 0, Z: 0}, ChunkCoord{X: 1, Y: 0, Z: 0}},
		{Pos{X: -1, Y: 0, Z: 0}, ChunkCoord{X: -1, Y: 0, Z: 0}},
		{Pos{X: -32, Y: 0, Z: 0}, ChunkCoord{X: -1, Y: 0, Z: 0}},
		{Pos{X: -33, Y: 0, Z: 0}, ChunkCoord{X: -2, Y: 0, Z: 0}},
	}
	for _, tc := range cases {
		if got := LocateChunk(tc.pos, 32); got != tc.want {
			t.Fatalf("LocateChunk(%v) = %v, want %v", tc.pos, got, tc.want)
		}
	}
}

func TestStoreEvict(t *testing.T) {
	s, _ := NewStore(8, StoreOptions{})
	p := Pos{X: 1, Y: 1, Z: 1}
	if err := s.WriteVoxel(p, Cell{Material: 9}); err != nil {
		t.Fatal(err)
	}
	s.Evict(LocateChunk(p, 8))
	if s.ChunkCount() != 0 {
		t.Fatalf("chunk count after evict %d, want 0", s.ChunkCount())
	}
	got, err := s.ReadVoxel(p)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Empty() {
		t.Fatalf("evicted region reads %+v, want empty", got)
	}
}
