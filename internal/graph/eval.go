package graph

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Lynthar/Voxelith/internal/noise"
	"github.com/Lynthar/Voxelith/internal/tileset"
	"github.com/Lynthar/Voxelith/internal/voxel"
	"github.com/Lynthar/Voxelith/internal/wfc"
)

// Env carries the collaborators and request parameters one evaluation
// runs against.
type Env struct {
	Store    *voxel.Store
	Registry *tileset.Registry
	Origin   voxel.Pos
	Dim      wfc.Dimensions
	Seed     int64
	// BacktrackBudget applies to solver nodes that declare none.
	BacktrackBudget int
	// Constraints are forwarded to every solver node.
	Constraints []wfc.Constraint
	// Workers bounds parallel field evaluation; 0 picks a default.
	Workers int
	// Progress, when set, receives per-node completion fractions.
	Progress func(nodeID string, done, total int)
}

func (e Env) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	w := runtime.GOMAXPROCS(0)
	if w < 1 {
		w = 1
	}
	return w
}

// Evaluate runs the graph in dependency order and returns the chunk
// coordinates touched by output nodes, sorted ascending.
func (g *Graph) Evaluate(ctx context.Context, env Env) ([]voxel.ChunkCoord, error) {
	if env.Store == nil {
		return nil, fmt.Errorf("evaluate graph %q: nil store", g.Name)
	}
	results := make(map[int]any, len(g.nodes))
	touched := make(map[voxel.ChunkCoord]struct{})

	for _, i := range g.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := &g.nodes[i]
		switch n.Kind {
		case KindNoise:
			out, err := evalNoise(ctx, env, n)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", n.ID, err)
			}
			results[i] = out
		case KindSolver:
			out, err := evalSolver(ctx, env, n)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", n.ID, err)
			}
			results[i] = out
		case KindShape:
			in := results[g.index[n.Inputs[0]]].(*ScalarField)
			results[i] = evalShape(n.Shape, in)
		case KindCombine:
			inputs := g.inputFields(n, results)
			results[i] = evalCombine(n.Combine.Op, inputs)
		case KindTransform:
			in := g.inputFields(n, results)[0]
			results[i] = evalTransform(n.Transform, in)
		case KindOutput:
			in := g.inputFields(n, results)[0]
			coords, err := commitField(ctx, env, n, in)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", n.ID, err)
			}
			for _, c := range coords {
				touched[c] = struct{}{}
			}
		}
	}

	out := make([]voxel.ChunkCoord, 0, len(touched))
	for c := range touched {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out, nil
}

func (g *Graph) inputFields(n *Node, results map[int]any) []*Field {
	fields := make([]*Field, len(n.Inputs))
	for i, in := range n.Inputs {
		fields[i] = results[g.index[in]].(*Field)
	}
	return fields
}

// evalNoise materializes a noise node over the request region, one
// worker per X slab.
func evalNoise(ctx context.Context, env Env, n *Node) (any, error) {
	p := n.Noise
	params := p.Noise
	params.Seed += env.Seed
	sampler := noise.NewSampler(params)

	cell := voxel.Cell{
		Material: p.Material,
		R:        p.Color[0],
		G:        p.Color[1],
		B:        p.Color[2],
		A:        p.Color[3],
	}

	var scalar *ScalarField
	var field *Field
	if p.Mode == "scalar" {
		scalar = NewScalarField(env.Origin, env.Dim.Width, env.Dim.Depth, env.Dim.Height)
	} else {
		field = NewField(env.Origin, env.Dim.Width, env.Dim.Depth, env.Dim.Height)
	}

	var mu sync.Mutex
	done := 0
	slabDone := func() {
		if env.Progress == nil {
			return
		}
		mu.Lock()
		done++
		d := done
		mu.Unlock()
		env.Progress(n.ID, d, env.Dim.Width)
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(env.workers())
	for x := 0; x < env.Dim.Width; x++ {
		x := x
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			worldX := env.Origin.X + x
			for y := 0; y < env.Dim.Depth; y++ {
				worldY := env.Origin.Y + y
				switch p.Mode {
				case "heightfield":
					height := p.Base + sampler.Sample2D(float64(worldX), float64(worldY))
					for z := 0; z < env.Dim.Height; z++ {
						if float64(env.Origin.Z+z) < height {
							field.Set(x, y, z, cell)
						}
					}
				case "density":
					for z := 0; z < env.Dim.Height; z++ {
						v := sampler.Sample3D(float64(worldX), float64(worldY), float64(env.Origin.Z+z))
						if v > p.Threshold {
							field.Set(x, y, z, cell)
						}
					}
				case "scalar":
					for z := 0; z < env.Dim.Height; z++ {
						scalar.Set(x, y, z, sampler.Sample3D(float64(worldX), float64(worldY), float64(env.Origin.Z+z)))
					}
				}
			}
			slabDone()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if scalar != nil {
		return scalar, nil
	}
	return field, nil
}

// evalSolver runs a constraint solve over the request region and maps
// the assignment through the tileset's cell palette.
func evalSolver(ctx context.Context, env Env, n *Node) (*Field, error) {
	if env.Registry == nil {
		return nil, fmt.Errorf("solver node needs a tileset registry")
	}
	ts, err := env.Registry.Get(n.Solver.Tileset)
	if err != nil {
		return nil, err
	}
	budget := env.BacktrackBudget
	if n.Solver.MaxBacktracks != nil {
		budget = *n.Solver.MaxBacktracks
	}

	solver, err := wfc.NewSolver(wfc.Config{
		TileSet:       ts,
		Dim:           env.Dim,
		Seed:          env.Seed + n.Solver.Seed,
		MaxBacktracks: budget,
		Constraints:   env.Constraints,
		Progress: func(collapsed, total int) {
			if env.Progress != nil {
				env.Progress(n.ID, collapsed, total)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	assignment, err := solver.Solve(ctx)
	if err != nil {
		return nil, err
	}
	if bt := solver.Backtracks(); bt > 0 {
		log.Printf("solver node %s converged after %d backtracks", n.ID, bt)
	}

	field := NewField(env.Origin, env.Dim.Width, env.Dim.Depth, env.Dim.Height)
	idx := 0
	for z := 0; z < env.Dim.Height; z++ {
		for y := 0; y < env.Dim.Depth; y++ {
			for x := 0; x < env.Dim.Width; x++ {
				field.Set(x, y, z, ts.Tile(assignment[idx]).Cell)
				idx++
			}
		}
	}
	return field, nil
}

// commitField writes a field into the store chunk by chunk, marking
// each touched chunk dirty.
func commitField(ctx context.Context, env Env, n *Node, field *Field) ([]voxel.ChunkCoord, error) {
	replace := n.Output != nil && n.Output.Mode == "replace"
	edge := env.Store.Edge()

	min := field.Origin
	max := field.Max()
	minChunk := voxel.LocateChunk(min, edge)
	maxChunk := voxel.LocateChunk(voxel.Pos{X: max.X - 1, Y: max.Y - 1, Z: max.Z - 1}, edge)

	total := (maxChunk.X - minChunk.X + 1) * (maxChunk.Y - minChunk.Y + 1) * (maxChunk.Z - minChunk.Z + 1)

	var mu sync.Mutex
	var touched []voxel.ChunkCoord
	done := 0

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(env.workers())
	for cx := minChunk.X; cx <= maxChunk.X; cx++ {
		for cy := minChunk.Y; cy <= maxChunk.Y; cy++ {
			for cz := minChunk.Z; cz <= maxChunk.Z; cz++ {
				coord := voxel.ChunkCoord{X: cx, Y: cy, Z: cz}
				grp.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					if err := writeChunkRegion(env.Store, coord, field, replace, func() {
						mu.Lock()
						touched = append(touched, coord)
						mu.Unlock()
					}); err != nil {
						return err
					}
					mu.Lock()
					done++
					d := done
					mu.Unlock()
					if env.Progress != nil {
						env.Progress(n.ID, d, total)
					}
					return nil
				})
			}
		}
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return touched, nil
}

// writeChunkRegion copies the field cells overlapping one chunk. The
// chunk is materialized only once the first cell actually lands, so
// merge-mode commits of sparse fields never create empty chunks.
func writeChunkRegion(store *voxel.Store, coord voxel.ChunkCoord, field *Field, replace bool, onTouched func()) error {
	edge := store.Edge()
	origin := coord.Origin(edge)

	var ch *voxel.Chunk
	for lz := 0; lz < edge; lz++ {
		for ly := 0; ly < edge; ly++ {
			for lx := 0; lx < edge; lx++ {
				world := voxel.Pos{X: origin.X + lx, Y: origin.Y + ly, Z: origin.Z + lz}
				if world.X < field.Origin.X || world.Y < field.Origin.Y || world.Z < field.Origin.Z {
					continue
				}
				fmax := field.Max()
				if world.X >= fmax.X || world.Y >= fmax.Y || world.Z >= fmax.Z {
					continue
				}
				cell := field.AtWorld(world)
				if cell.Empty() && !replace {
					continue
				}
				if ch == nil {
					var err error
					ch, err = store.EnsureChunk(coord)
					if err != nil {
						return err
					}
				}
				ch.Set(lx, ly, lz, cell)
			}
		}
	}
	if ch != nil {
		onTouched()
	}
	return nil
}

// evalShape materializes a scalar field into voxels using the same
// height and density rules as direct noise nodes.
func evalShape(p *ShapeParams, in *ScalarField) *Field {
	cell := voxel.Cell{
		Material: p.Material,
		R:        p.Color[0],
		G:        p.Color[1],
		B:        p.Color[2],
		A:        p.Color[3],
	}
	out := NewField(in.Origin, in.W, in.D, in.H)
	for y := 0; y < in.D; y++ {
		for x := 0; x < in.W; x++ {
			switch p.Mode {
			case "heightfield":
				height := p.Base + in.At(x, y, 0)
				for z := 0; z < in.H; z++ {
					if float64(in.Origin.Z+z) < height {
						out.Set(x, y, z, cell)
					}
				}
			case "density":
				for z := 0; z < in.H; z++ {
					if in.At(x, y, z) > p.Threshold {
						out.Set(x, y, z, cell)
					}
				}
			}
		}
	}
	return out
}

// evalCombine merges voxel fields per the declared operator. Input
// order is the priority order, first highest.
func evalCombine(op string, inputs []*Field) *Field {
	switch op {
	case "union":
		min, max := inputs[0].Origin, inputs[0].Max()
		for _, in := range inputs[1:] {
			a := &Field{Origin: min, W: max.X - min.X, D: max.Y - min.Y, H: max.Z - min.Z}
			min, max = boundsUnion(a, in)
		}
		out := NewField(min, max.X-min.X, max.Y-min.Y, max.Z-min.Z)
		forEachLocal(out, func(x, y, z int, world voxel.Pos) {
			for _, in := range inputs {
				if cell := in.AtWorld(world); !cell.Empty() {
					out.Set(x, y, z, cell)
					return
				}
			}
		})
		return out
	case "subtract":
		base := inputs[0]
		out := NewField(base.Origin, base.W, base.D, base.H)
		forEachLocal(out, func(x, y, z int, world voxel.Pos) {
			cell := base.At(x, y, z)
			if cell.Empty() {
				return
			}
			for _, in := range inputs[1:] {
				if !in.AtWorld(world).Empty() {
					return
				}
			}
			out.Set(x, y, z, cell)
		})
		return out
	default: // intersect
		base := inputs[0]
		out := NewField(base.Origin, base.W, base.D, base.H)
		forEachLocal(out, func(x, y, z int, world voxel.Pos) {
			cell := base.At(x, y, z)
			if cell.Empty() {
				return
			}
			for _, in := range inputs[1:] {
				if in.AtWorld(world).Empty() {
					return
				}
			}
			out.Set(x, y, z, cell)
		})
		return out
	}
}

func forEachLocal(f *Field, fn func(x, y, z int, world voxel.Pos)) {
	for z := 0; z < f.H; z++ {
		for y := 0; y < f.D; y++ {
			for x := 0; x < f.W; x++ {
				fn(x, y, z, voxel.Pos{X: f.Origin.X + x, Y: f.Origin.Y + y, Z: f.Origin.Z + z})
			}
		}
	}
}

// evalTransform applies rotation (90° steps about Z), uniform scaling
// and integer translation, in that order.
func evalTransform(p *TransformParams, in *Field) *Field {
	out := in

	turns := ((p.RotateZ/90)%4 + 4) % 4
	for t := 0; t < turns; t++ {
		rotated := NewField(out.Origin, out.D, out.W, out.H)
		for z := 0; z < out.H; z++ {
			for y := 0; y < out.D; y++ {
				for x := 0; x < out.W; x++ {
					rotated.Set(out.D-1-y, x, z, out.At(x, y, z))
				}
			}
		}
		out = rotated
	}

	if p.Scale > 1 {
		s := p.Scale
		scaled := NewField(out.Origin, out.W*s, out.D*s, out.H*s)
		for z := 0; z < out.H; z++ {
			for y := 0; y < out.D; y++ {
				for x := 0; x < out.W; x++ {
					cell := out.At(x, y, z)
					if cell.Empty() {
						continue
					}
					for dz := 0; dz < s; dz++ {
						for dy := 0; dy < s; dy++ {
							for dx := 0; dx < s; dx++ {
								scaled.Set(x*s+dx, y*s+dy, z*s+dz, cell)
							}
						}
					}
				}
			}
		}
		out = scaled
	}

	if p.Translate != [3]int{} {
		moved := NewField(voxel.Pos{
			X: out.Origin.X + p.Translate[0],
			Y: out.Origin.Y + p.Translate[1],
			Z: out.Origin.Z + p.Translate[2],
		}, out.W, out.D, out.H)
		copy(moved.cells, out.cells)
		out = moved
	}

	if out == in {
		// Identity transform still yields a fresh field so downstream
		// mutation cannot alias the input.
		moved := NewField(in.Origin, in.W, in.D, in.H)
		copy(moved.cells, in.cells)
		out = moved
	}
	return out
}
