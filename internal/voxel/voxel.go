package voxel

import (
	"encoding/binary"
	"fmt"
)

// Cell is a single voxel value: a material identifier (0 = empty), an
// RGBA color and a flag bitfield.
type Cell struct {
	Material uint16
	R, G, B  uint8
	A        uint8
	Flags    uint8
}

// CellFlag bits.
const (
	FlagEmissive uint8 = 1 << 0
	FlagMetallic uint8 = 1 << 1
)

// Empty reports whether the cell carries no material.
func (c Cell) Empty() bool {
	return c.Material == 0
}

// cellWireSize is the fixed encoded size of a Cell in chunk records.
const cellWireSize = 8

func (c Cell) appendWire(buf []byte) []byte {
	var raw [cellWireSize]byte
	binary.LittleEndian.PutUint16(raw[0:2], c.Material)
	raw[2] = c.R
	raw[3] = c.G
	raw[4] = c.B
	raw[5] = c.A
	raw[6] = c.Flags
	return append(buf, raw[:]...)
}

func cellFromWire(raw []byte) Cell {
	return Cell{
		Material: binary.LittleEndian.Uint16(raw[0:2]),
		R:        raw[2],
		G:        raw[3],
		B:        raw[4],
		A:        raw[5],
		Flags:    raw[6],
	}
}

// Pos is a voxel position in global voxel space.
type Pos struct {
	X int
	Y int
	Z int
}

// ChunkCoord identifies a chunk in global chunk space.
type ChunkCoord struct {
	X int
	Y int
	Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Origin returns the global position of the chunk's minimum corner.
func (c ChunkCoord) Origin(edge int) Pos {
	return Pos{X: c.X * edge, Y: c.Y * edge, Z: c.Z * edge}
}

// LocateChunk maps a global voxel position to its owning chunk coordinate.
func LocateChunk(p Pos, edge int) ChunkCoord {
	return ChunkCoord{
		X: floorDiv(p.X, edge),
		Y: floorDiv(p.Y, edge),
		Z: floorDiv(p.Z, edge),
	}
}

func floorDiv(value, size int) int {
	if size <= 0 {
		return 0
	}
	if value >= 0 {
		return value / size
	}
	return -((-value - 1) / size) - 1
}

func floorMod(value, size int) int {
	m := value - floorDiv(value, size)*size
	return m
}
