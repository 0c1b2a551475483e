package voxel

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// run is one span of identical cells in a chunk's linear cell order.
type run struct {
	count int32
	cell  Cell
}

// Chunk is a cubic region of edge³ cells held as run-length-encoded
// spans over the linear index order x + y*edge + z*edge² (x fastest).
// Run counts always sum to exactly edge³.
type Chunk struct {
	mu    sync.RWMutex
	edge  int
	runs  []run
	solid int
	dirty bool
}

// NewChunk creates an all-empty chunk with the given edge length.
func NewChunk(edge int) *Chunk {
	return &Chunk{
		edge: edge,
		runs: []run{{count: int32(edge * edge * edge)}},
	}
}

// Edge returns the chunk's edge length in cells.
func (c *Chunk) Edge() int {
	return c.edge
}

// Volume returns the total cell count (edge³).
func (c *Chunk) Volume() int {
	return c.edge * c.edge * c.edge
}

func (c *Chunk) index(x, y, z int) (int, bool) {
	if x < 0 || y < 0 || z < 0 || x >= c.edge || y >= c.edge || z >= c.edge {
		return 0, false
	}
	return x + y*c.edge + z*c.edge*c.edge, true
}

// Get returns the cell at local coordinates. Out-of-range coordinates
// report false.
func (c *Chunk) Get(x, y, z int) (Cell, bool) {
	idx, ok := c.index(x, y, z)
	if !ok {
		return Cell{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos := 0
	for _, r := range c.runs {
		pos += int(r.count)
		if idx < pos {
			return r.cell, true
		}
	}
	return Cell{}, false
}

// Set writes the cell at local coordinates, splitting and coalescing
// runs as needed. The chunk is marked dirty on any change.
func (c *Chunk) Set(x, y, z int, cell Cell) bool {
	idx, ok := c.index(x, y, z)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setIndex(idx, cell)
	return true
}

func (c *Chunk) setIndex(idx int, cell Cell) {
	pos := 0
	for i := 0; i < len(c.runs); i++ {
		n := int(c.runs[i].count)
		if idx >= pos+n {
			pos += n
			continue
		}
		old := c.runs[i].cell
		if old == cell {
			return
		}
		if !old.Empty() && cell.Empty() {
			c.solid--
		} else if old.Empty() && !cell.Empty() {
			c.solid++
		}
		var repl []run
		if before := idx - pos; before > 0 {
			repl = append(repl, run{count: int32(before), cell: old})
		}
		repl = append(repl, run{count: 1, cell: cell})
		if after := pos + n - idx - 1; after > 0 {
			repl = append(repl, run{count: int32(after), cell: old})
		}
		tail := append(repl, c.runs[i+1:]...)
		c.runs = append(c.runs[:i], tail...)
		c.coalesce()
		c.dirty = true
		return
	}
}

// coalesce merges adjacent runs holding the same cell.
func (c *Chunk) coalesce() {
	out := c.runs[:0]
	for _, r := range c.runs {
		if len(out) > 0 && out[len(out)-1].cell == r.cell {
			out[len(out)-1].count += r.count
		} else {
			out = append(out, r)
		}
	}
	c.runs = out
}

// Cells decodes the chunk into a dense slice of exactly edge³ cells.
func (c *Chunk) Cells() []Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cells := make([]Cell, 0, c.Volume())
	for _, r := range c.runs {
		for i := int32(0); i < r.count; i++ {
			cells = append(cells, r.cell)
		}
	}
	return cells
}

// FillFrom re-encodes the chunk from a dense cell slice of length edge³.
func (c *Chunk) FillFrom(cells []Cell) error {
	if len(cells) != c.Volume() {
		return fmt.Errorf("fill chunk: got %d cells, want %d", len(cells), c.Volume())
	}
	runs := make([]run, 0, 8)
	solid := 0
	for _, cell := range cells {
		if !cell.Empty() {
			solid++
		}
		if len(runs) > 0 && runs[len(runs)-1].cell == cell {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{count: 1, cell: cell})
		}
	}
	c.mu.Lock()
	c.runs = runs
	c.solid = solid
	c.dirty = true
	c.mu.Unlock()
	return nil
}

// SolidCount returns the number of non-empty cells.
func (c *Chunk) SolidCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.solid
}

// IsEmpty reports whether every cell is empty.
func (c *Chunk) IsEmpty() bool {
	return c.SolidCount() == 0
}

// Dirty reports whether the chunk changed since the last acknowledgment.
func (c *Chunk) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func (c *Chunk) markDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

func (c *Chunk) clearDirty() {
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
}

// ForEachSolid invokes fn for every non-empty cell with its local
// coordinates, stopping early when fn returns false.
func (c *Chunk) ForEachSolid(fn func(x, y, z int, cell Cell) bool) {
	c.mu.RLock()
	runs := make([]run, len(c.runs))
	copy(runs, c.runs)
	edge := c.edge
	c.mu.RUnlock()

	idx := 0
	for _, r := range runs {
		if r.cell.Empty() {
			idx += int(r.count)
			continue
		}
		for i := int32(0); i < r.count; i++ {
			x := idx % edge
			y := (idx / edge) % edge
			z := idx / (edge * edge)
			if !fn(x, y, z, r.cell) {
				return
			}
			idx++
		}
	}
}

// Encode serializes the chunk's run spans: a run count followed by
// (count uint32, cell 8 bytes) records, all little-endian.
func (c *Chunk) Encode() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf := make([]byte, 0, 4+len(c.runs)*(4+cellWireSize))
	var head [4]byte
	binary.LittleEndian.PutUint32(head[:], uint32(len(c.runs)))
	buf = append(buf, head[:]...)
	for _, r := range c.runs {
		var cnt [4]byte
		binary.LittleEndian.PutUint32(cnt[:], uint32(r.count))
		buf = append(buf, cnt[:]...)
		buf = r.cell.appendWire(buf)
	}
	return buf
}

// DecodeChunk reconstructs a chunk from Encode output. The decoded run
// spans must cover exactly edge³ cells.
func DecodeChunk(edge int, data []byte) (*Chunk, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("decode chunk: truncated header")
	}
	count := int(binary.LittleEndian.Uint32(data[:4]))
	offset := 4
	runs := make([]run, 0, count)
	total := 0
	solid := 0
	for i := 0; i < count; i++ {
		if offset+4+cellWireSize > len(data) {
			return nil, fmt.Errorf("decode chunk: truncated run %d", i)
		}
		n := int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
		cell := cellFromWire(data[offset+4 : offset+4+cellWireSize])
		offset += 4 + cellWireSize
		if n <= 0 {
			return nil, fmt.Errorf("decode chunk: run %d has count %d", i, n)
		}
		runs = append(runs, run{count: n, cell: cell})
		total += int(n)
		if !cell.Empty() {
			solid += int(n)
		}
	}
	if total != edge*edge*edge {
		return nil, fmt.Errorf("decode chunk: runs cover %d cells, want %d", total, edge*edge*edge)
	}
	ch := &Chunk{edge: edge, runs: runs, solid: solid}
	ch.coalesce()
	return ch, nil
}
