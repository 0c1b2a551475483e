package graph

import (
	"github.com/Lynthar/Voxelith/internal/voxel"
)

// Field is a dense voxel region exchanged between graph nodes before
// final commitment into the store.
type Field struct {
	Origin  voxel.Pos
	W, D, H int
	cells   []voxel.Cell
}

// NewField creates an all-empty field.
func NewField(origin voxel.Pos, w, d, h int) *Field {
	return &Field{
		Origin: origin,
		W:      w,
		D:      d,
		H:      h,
		cells:  make([]voxel.Cell, w*d*h),
	}
}

// At returns the cell at local coordinates; out-of-range reads are empty.
func (f *Field) At(x, y, z int) voxel.Cell {
	if x < 0 || y < 0 || z < 0 || x >= f.W || y >= f.D || z >= f.H {
		return voxel.Cell{}
	}
	return f.cells[x+y*f.W+z*f.W*f.D]
}

// Set writes the cell at local coordinates; out-of-range writes are
// dropped.
func (f *Field) Set(x, y, z int, cell voxel.Cell) {
	if x < 0 || y < 0 || z < 0 || x >= f.W || y >= f.D || z >= f.H {
		return
	}
	f.cells[x+y*f.W+z*f.W*f.D] = cell
}

// AtWorld returns the cell at a global position, empty outside the
// field's bounds.
func (f *Field) AtWorld(p voxel.Pos) voxel.Cell {
	return f.At(p.X-f.Origin.X, p.Y-f.Origin.Y, p.Z-f.Origin.Z)
}

// Max returns the exclusive upper corner in global space.
func (f *Field) Max() voxel.Pos {
	return voxel.Pos{X: f.Origin.X + f.W, Y: f.Origin.Y + f.D, Z: f.Origin.Z + f.H}
}

// SolidCount returns the number of non-empty cells.
func (f *Field) SolidCount() int {
	n := 0
	for _, c := range f.cells {
		if !c.Empty() {
			n++
		}
	}
	return n
}

// Equal reports whether two fields cover the same region with the same
// cells.
func (f *Field) Equal(other *Field) bool {
	if f.Origin != other.Origin || f.W != other.W || f.D != other.D || f.H != other.H {
		return false
	}
	for i := range f.cells {
		if f.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// ScalarField is a dense scalar region produced by noise nodes in
// scalar mode, consumed by exporters rather than voxel combiners.
type ScalarField struct {
	Origin  voxel.Pos
	W, D, H int
	values  []float64
}

// NewScalarField creates a zeroed scalar field.
func NewScalarField(origin voxel.Pos, w, d, h int) *ScalarField {
	return &ScalarField{Origin: origin, W: w, D: d, H: h, values: make([]float64, w*d*h)}
}

// At returns the value at local coordinates.
func (f *ScalarField) At(x, y, z int) float64 {
	return f.values[x+y*f.W+z*f.W*f.D]
}

// Set writes the value at local coordinates.
func (f *ScalarField) Set(x, y, z int, v float64) {
	f.values[x+y*f.W+z*f.W*f.D] = v
}

func boundsUnion(a, b *Field) (voxel.Pos, voxel.Pos) {
	min := a.Origin
	max := a.Max()
	if b.Origin.X < min.X {
		min.X = b.Origin.X
	}
	if b.Origin.Y < min.Y {
		min.Y = b.Origin.Y
	}
	if b.Origin.Z < min.Z {
		min.Z = b.Origin.Z
	}
	bm := b.Max()
	if bm.X > max.X {
		max.X = bm.X
	}
	if bm.Y > max.Y {
		max.Y = bm.Y
	}
	if bm.Z > max.Z {
		max.Z = bm.Z
	}
	return min, max
}
