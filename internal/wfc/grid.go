package wfc

import (
	"math"

	"github.com/Lynthar/Voxelith/internal/tileset"
)

// Dimensions is the slot extent of a solve region along X, Y and Z.
type Dimensions struct {
	Width  int
	Depth  int
	Height int
}

// Volume returns the total slot count.
func (d Dimensions) Volume() int {
	return d.Width * d.Depth * d.Height
}

// SlotState classifies one slot of the working grid.
type SlotState int

const (
	Uncollapsed SlotState = iota
	Collapsed
	Contradiction
)

type slot struct {
	candidates tileset.Mask
	entropy    float64
}

// Grid is the solver's ephemeral working domain: a dense 3D array of
// candidate sets. It exists only for the duration of one solve.
type Grid struct {
	ts        *tileset.TileSet
	dim       Dimensions
	slots     []slot
	undecided int
}

func newGrid(ts *tileset.TileSet, dim Dimensions) *Grid {
	g := &Grid{
		ts:    ts,
		dim:   dim,
		slots: make([]slot, dim.Volume()),
	}
	full := ts.FullMask()
	baseEntropy := g.entropyOf(full)
	for i := range g.slots {
		g.slots[i].candidates = full.Clone()
		g.slots[i].entropy = baseEntropy
	}
	g.undecided = 0
	for i := range g.slots {
		if g.slots[i].candidates.Count() > 1 {
			g.undecided++
		}
	}
	return g
}

func (g *Grid) index(x, y, z int) (int, bool) {
	if x < 0 || y < 0 || z < 0 || x >= g.dim.Width || y >= g.dim.Depth || z >= g.dim.Height {
		return 0, false
	}
	return x + y*g.dim.Width + z*g.dim.Width*g.dim.Depth, true
}

func (g *Grid) coords(idx int) (x, y, z int) {
	x = idx % g.dim.Width
	y = (idx / g.dim.Width) % g.dim.Depth
	z = idx / (g.dim.Width * g.dim.Depth)
	return
}

func (g *Grid) neighbor(idx int, d tileset.Direction) (int, bool) {
	x, y, z := g.coords(idx)
	dx, dy, dz := d.Offset()
	return g.index(x+dx, y+dy, z+dz)
}

// State classifies the slot at idx by its remaining candidate count.
func (g *Grid) State(idx int) SlotState {
	switch g.slots[idx].candidates.Count() {
	case 0:
		return Contradiction
	case 1:
		return Collapsed
	default:
		return Uncollapsed
	}
}

// setCandidates replaces a slot's candidate set, keeping the entropy
// cache and undecided counter current.
func (g *Grid) setCandidates(idx int, mask tileset.Mask) {
	before := g.slots[idx].candidates.Count()
	g.slots[idx].candidates = mask
	after := mask.Count()
	if before > 1 && after <= 1 {
		g.undecided--
	} else if before <= 1 && after > 1 {
		g.undecided++
	}
	if after > 1 {
		g.slots[idx].entropy = g.entropyOf(mask)
	}
}

// entropyOf computes the weighted entropy of a candidate set:
// log(sum w) - (sum w*log w)/(sum w). Lower means more constrained.
func (g *Grid) entropyOf(mask tileset.Mask) float64 {
	sumW := 0.0
	sumWLogW := 0.0
	mask.ForEach(func(t int) bool {
		w := g.ts.Weight(t)
		sumW += w
		sumWLogW += w * math.Log(w)
		return true
	})
	if sumW <= 0 {
		return 0
	}
	return math.Log(sumW) - sumWLogW/sumW
}

// support returns the union of tiles placeable adjacent to any of the
// slot's candidates along direction d.
func (g *Grid) support(idx int, d tileset.Direction) tileset.Mask {
	allowed := tileset.NewMask(g.ts.TileCount())
	g.slots[idx].candidates.ForEach(func(t int) bool {
		allowed.UnionWith(g.ts.Compatible(t, d))
		return true
	})
	return allowed
}
