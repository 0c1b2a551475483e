package voxel

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfBounds reports a voxel or chunk coordinate outside the
// addressable range configured for the store.
var ErrOutOfBounds = errors.New("coordinate out of bounds")

// ChunkBounds is an inclusive box in chunk-coordinate space.
type ChunkBounds struct {
	Min ChunkCoord
	Max ChunkCoord
}

// Contains reports whether the chunk coordinate lies inside the box.
func (b ChunkBounds) Contains(c ChunkCoord) bool {
	return c.X >= b.Min.X && c.X <= b.Max.X &&
		c.Y >= b.Min.Y && c.Y <= b.Max.Y &&
		c.Z >= b.Min.Z && c.Z <= b.Max.Z
}

// StoreOptions tunes store behaviour.
type StoreOptions struct {
	// MaterializeOnGet makes Chunk create an empty chunk for absent
	// coordinates instead of returning nil.
	MaterializeOnGet bool
	// Bounds limits the addressable chunk range. Nil means unbounded.
	Bounds *ChunkBounds
}

// Store maps chunk coordinates to chunks sharing one edge length.
// Absent coordinates are logically all-empty until materialized.
type Store struct {
	edge int
	opts StoreOptions

	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk
}

// NewStore creates an empty store with the given chunk edge length.
func NewStore(edge int, opts StoreOptions) (*Store, error) {
	if edge <= 0 {
		return nil, fmt.Errorf("store edge length must be positive, got %d", edge)
	}
	return &Store{
		edge:   edge,
		opts:   opts,
		chunks: make(map[ChunkCoord]*Chunk),
	}, nil
}

// Edge returns the shared chunk edge length.
func (s *Store) Edge() int {
	return s.edge
}

func (s *Store) inBounds(coord ChunkCoord) bool {
	return s.opts.Bounds == nil || s.opts.Bounds.Contains(coord)
}

// Chunk returns the chunk at coord. Behaviour for absent coordinates
// depends on MaterializeOnGet: either an empty chunk is created or
// (nil, nil) is returned.
func (s *Store) Chunk(coord ChunkCoord) (*Chunk, error) {
	if !s.inBounds(coord) {
		return nil, fmt.Errorf("chunk %v: %w", coord, ErrOutOfBounds)
	}
	s.mu.RLock()
	ch, ok := s.chunks[coord]
	s.mu.RUnlock()
	if ok {
		return ch, nil
	}
	if !s.opts.MaterializeOnGet {
		return nil, nil
	}
	return s.ensure(coord), nil
}

// EnsureChunk returns the chunk at coord, materializing it if absent.
func (s *Store) EnsureChunk(coord ChunkCoord) (*Chunk, error) {
	if !s.inBounds(coord) {
		return nil, fmt.Errorf("chunk %v: %w", coord, ErrOutOfBounds)
	}
	return s.ensure(coord), nil
}

func (s *Store) ensure(coord ChunkCoord) *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chunks[coord]; ok {
		return existing
	}
	ch := NewChunk(s.edge)
	s.chunks[coord] = ch
	return ch
}

// PutChunk installs a pre-built chunk, replacing any existing one.
// The chunk's edge must match the store's.
func (s *Store) PutChunk(coord ChunkCoord, ch *Chunk) error {
	if !s.inBounds(coord) {
		return fmt.Errorf("chunk %v: %w", coord, ErrOutOfBounds)
	}
	if ch.Edge() != s.edge {
		return fmt.Errorf("chunk %v edge %d does not match store edge %d", coord, ch.Edge(), s.edge)
	}
	s.mu.Lock()
	s.chunks[coord] = ch
	s.mu.Unlock()
	return nil
}

// ReadVoxel returns the cell at a global position; absent chunks read
// as empty cells.
func (s *Store) ReadVoxel(p Pos) (Cell, error) {
	coord := LocateChunk(p, s.edge)
	if !s.inBounds(coord) {
		return Cell{}, fmt.Errorf("voxel %v: %w", p, ErrOutOfBounds)
	}
	s.mu.RLock()
	ch, ok := s.chunks[coord]
	s.mu.RUnlock()
	if !ok {
		return Cell{}, nil
	}
	cell, _ := ch.Get(floorMod(p.X, s.edge), floorMod(p.Y, s.edge), floorMod(p.Z, s.edge))
	return cell, nil
}

// WriteVoxel writes a cell at a global position, materializing the
// chunk as needed and marking it dirty.
func (s *Store) WriteVoxel(p Pos, cell Cell) error {
	coord := LocateChunk(p, s.edge)
	if !s.inBounds(coord) {
		return fmt.Errorf("voxel %v: %w", p, ErrOutOfBounds)
	}
	ch := s.ensure(coord)
	ch.Set(floorMod(p.X, s.edge), floorMod(p.Y, s.edge), floorMod(p.Z, s.edge), cell)
	return nil
}

// ForEachDirtyChunk invokes fn for every dirty chunk, stopping early
// when fn returns false. Dirty flags are cleared only via AckClean.
func (s *Store) ForEachDirtyChunk(fn func(coord ChunkCoord, ch *Chunk) bool) {
	s.mu.RLock()
	type entry struct {
		coord ChunkCoord
		chunk *Chunk
	}
	dirty := make([]entry, 0, len(s.chunks))
	for coord, ch := range s.chunks {
		if ch.Dirty() {
			dirty = append(dirty, entry{coord: coord, chunk: ch})
		}
	}
	s.mu.RUnlock()

	for _, e := range dirty {
		if !fn(e.coord, e.chunk) {
			return
		}
	}
}

// AckClean acknowledges a consumer has processed the chunk, clearing
// its dirty flag.
func (s *Store) AckClean(coord ChunkCoord) {
	s.mu.RLock()
	ch, ok := s.chunks[coord]
	s.mu.RUnlock()
	if ok {
		ch.clearDirty()
	}
}

// ChunkCount returns the number of materialized chunks.
func (s *Store) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Evict drops a materialized chunk from the store. The caller is
// responsible for persisting it first if needed.
func (s *Store) Evict(coord ChunkCoord) {
	s.mu.Lock()
	delete(s.chunks, coord)
	s.mu.Unlock()
}
