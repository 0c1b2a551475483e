package tileset

import (
	"errors"
	"fmt"

	"github.com/Lynthar/Voxelith/internal/voxel"
)

// ErrInvalidTileSet reports a tileset definition that cannot produce a
// usable compatibility table: asymmetric relations or unselectable tiles.
var ErrInvalidTileSet = errors.New("invalid tileset")

// Direction enumerates the six face directions of a cubic tile.
type Direction int

const (
	DirXPos Direction = iota
	DirXNeg
	DirYPos
	DirYNeg
	DirZPos
	DirZNeg
	NumDirections
)

var directionNames = [NumDirections]string{"+x", "-x", "+y", "-y", "+z", "-z"}

func (d Direction) String() string {
	if d < 0 || d >= NumDirections {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// Opposite returns the facing direction on the adjacent tile.
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// Offset returns the unit step toward the neighboring slot.
func (d Direction) Offset() (dx, dy, dz int) {
	switch d {
	case DirXPos:
		return 1, 0, 0
	case DirXNeg:
		return -1, 0, 0
	case DirYPos:
		return 0, 1, 0
	case DirYNeg:
		return 0, -1, 0
	case DirZPos:
		return 0, 0, 1
	default:
		return 0, 0, -1
	}
}

// Tile is one placeable generation unit: a weight, a connector label
// per face and the cell written into the output when placed.
type Tile struct {
	Name       string
	Weight     float64
	Connectors [NumDirections]string
	Cell       voxel.Cell
}

// extraRule is a directed compatibility override supplementing connector
// matching: from may sit next to to along dir.
type extraRule struct {
	from, to int
	dir      Direction
}

// TileSet holds expanded tiles plus the derived per-tile-per-direction
// compatibility bitsets, built once at load time.
type TileSet struct {
	Name    string
	tiles   []Tile
	weights []float64
	// compat[d][t] is the set of tiles placeable at the slot one step
	// in direction d from a slot fixed to tile t.
	compat [NumDirections][]Mask
}

// TileCount returns the number of expanded tiles.
func (ts *TileSet) TileCount() int {
	return len(ts.tiles)
}

// Tile returns the tile with the given id.
func (ts *TileSet) Tile(id int) Tile {
	return ts.tiles[id]
}

// Weight returns the selection weight of the given tile id.
func (ts *TileSet) Weight(id int) float64 {
	return ts.weights[id]
}

// TileByName returns the id of the named tile.
func (ts *TileSet) TileByName(name string) (int, bool) {
	for id, t := range ts.tiles {
		if t.Name == name {
			return id, true
		}
	}
	return 0, false
}

// Compatible returns the set of tiles placeable adjacent to tile t in
// direction d. The returned mask is shared; callers must not mutate it.
func (ts *TileSet) Compatible(t int, d Direction) Mask {
	return ts.compat[d][t]
}

// FullMask returns a fresh mask with every tile id set.
func (ts *TileSet) FullMask() Mask {
	return FullMask(len(ts.tiles))
}

// newTileSet builds the compatibility table from expanded tiles and
// validates it. O(tiles² × directions) comparisons, cached as bitsets
// for O(1) queries during solving.
func newTileSet(name string, tiles []Tile, extras []extraRule) (*TileSet, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: tileset %q has no tiles", ErrInvalidTileSet, name)
	}
	ts := &TileSet{
		Name:    name,
		tiles:   tiles,
		weights: make([]float64, len(tiles)),
	}
	for id, t := range tiles {
		if t.Weight <= 0 {
			return nil, fmt.Errorf("%w: tile %q has non-positive weight %g", ErrInvalidTileSet, t.Name, t.Weight)
		}
		ts.weights[id] = t.Weight
	}

	n := len(tiles)
	for d := Direction(0); d < NumDirections; d++ {
		ts.compat[d] = make([]Mask, n)
		for t := 0; t < n; t++ {
			ts.compat[d][t] = NewMask(n)
		}
	}
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			for d := Direction(0); d < NumDirections; d++ {
				if tiles[a].Connectors[d] == tiles[b].Connectors[d.Opposite()] {
					ts.compat[d][a].Set(b)
				}
			}
		}
	}
	for _, r := range extras {
		ts.compat[r.dir][r.from].Set(r.to)
	}

	if err := ts.validateSymmetry(); err != nil {
		return nil, err
	}
	return ts, nil
}

// validateSymmetry rejects a table where A accepts B along d but B does
// not accept A along the opposite direction.
func (ts *TileSet) validateSymmetry() error {
	n := len(ts.tiles)
	for d := Direction(0); d < NumDirections; d++ {
		for a := 0; a < n; a++ {
			for b := 0; b < n; b++ {
				if ts.compat[d][a].Has(b) != ts.compat[d.Opposite()][b].Has(a) {
					return fmt.Errorf("%w: asymmetric compatibility between %q and %q along %v",
						ErrInvalidTileSet, ts.tiles[a].Name, ts.tiles[b].Name, d)
				}
			}
		}
	}
	return nil
}
