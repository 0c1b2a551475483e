package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Lynthar/Voxelith/internal/graph"
	"github.com/Lynthar/Voxelith/internal/tileset"
	"github.com/Lynthar/Voxelith/internal/voxel"
	"github.com/Lynthar/Voxelith/internal/wfc"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *voxel.Store) {
	t.Helper()
	store, err := voxel.NewStore(8, voxel.StoreOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	conn := map[string]string{"+x": "s", "-x": "s", "+y": "s", "-y": "s", "+z": "s", "-z": "s"}
	registry := tileset.NewRegistry()
	if _, err := registry.Add(tileset.SetDef{
		Name: "blocks",
		Tiles: []tileset.TileDef{
			{Name: "grass", Weight: 1, Connectors: conn, Material: 1, Color: [4]uint8{90, 160, 70, 255}},
			{Name: "stone", Weight: 1, Connectors: conn, Material: 2, Color: [4]uint8{120, 120, 120, 255}},
		},
	}); err != nil {
		t.Fatalf("register tileset: %v", err)
	}
	// A set whose heavy tile tolerates no x neighbor, forcing backtracks.
	if _, err := registry.Add(tileset.SetDef{
		Name: "trap",
		Tiles: []tileset.TileDef{
			{Name: "trap", Weight: 1000, Connectors: map[string]string{
				"+x": "p", "-x": "q", "+y": "y", "-y": "y", "+z": "z", "-z": "z",
			}, Material: 1},
			{Name: "safe", Weight: 1, Connectors: map[string]string{
				"+x": "u", "-x": "u", "+y": "y", "-y": "y", "+z": "z", "-z": "z",
			}, Material: 2},
		},
	}); err != nil {
		t.Fatalf("register trap tileset: %v", err)
	}
	return New(store, registry, opts), store
}

func terrainGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New("terrain", []graph.Node{
		{ID: "ground", Kind: graph.KindNoise, Noise: &graph.NoiseParams{
			Mode: "heightfield", Base: 4, Material: 1, Color: [4]uint8{90, 160, 70, 255},
		}},
		{ID: "out", Kind: graph.KindOutput, Inputs: []string{"ground"}},
	})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	return g
}

func solverGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New("structure", []graph.Node{
		{ID: "walls", Kind: graph.KindSolver, Solver: &graph.SolverParams{Tileset: "blocks"}},
		{ID: "out", Kind: graph.KindOutput, Inputs: []string{"walls"}},
	})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	return g
}

func TestGenerateCommitsRun(t *testing.T) {
	e, store := newTestEngine(t, Options{Workers: 2})
	res, err := e.Generate(context.Background(), Request{
		Graph: terrainGraph(t),
		Dim:   wfc.Dimensions{Width: 8, Depth: 8, Height: 8},
		Seed:  1,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Touched) != 1 {
		t.Fatalf("touched %v, want one chunk", res.Touched)
	}
	got, err := store.ReadVoxel(voxel.Pos{X: 2, Y: 2, Z: 0})
	if err != nil {
		t.Fatal(err)
	}
	if got.Empty() {
		t.Fatal("ground layer not committed")
	}
}

func TestGenerateValidatesRequest(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	if _, err := e.Generate(context.Background(), Request{
		Dim: wfc.Dimensions{Width: 4, Depth: 4, Height: 4},
	}); err == nil {
		t.Fatal("expected error for missing graph")
	}
	if _, err := e.Generate(context.Background(), Request{
		Graph: terrainGraph(t),
		Dim:   wfc.Dimensions{Width: 0, Depth: 4, Height: 4},
	}); err == nil {
		t.Fatal("expected error for non-positive dimensions")
	}
}

func TestRegionOverlapRejected(t *testing.T) {
	e, _ := newTestEngine(t, Options{MaxConcurrentRuns: 2})

	a := e.regionBounds(Request{Origin: voxel.Pos{}, Dim: wfc.Dimensions{Width: 16, Depth: 16, Height: 16}})
	if err := e.acquireRegion(a); err != nil {
		t.Fatalf("acquire first region: %v", err)
	}

	// Distinct voxel ranges that still share chunk {1,1,1}.
	b := e.regionBounds(Request{Origin: voxel.Pos{X: 12, Y: 12, Z: 12}, Dim: wfc.Dimensions{Width: 8, Depth: 8, Height: 8}})
	if err := e.acquireRegion(b); !errors.Is(err, ErrRegionBusy) {
		t.Fatalf("expected ErrRegionBusy, got %v", err)
	}

	// A disjoint region is admitted alongside.
	c := e.regionBounds(Request{Origin: voxel.Pos{X: 100, Y: 0, Z: 0}, Dim: wfc.Dimensions{Width: 8, Depth: 8, Height: 8}})
	if err := e.acquireRegion(c); err != nil {
		t.Fatalf("acquire disjoint region: %v", err)
	}

	// Releasing the first region frees its chunks for reuse.
	e.releaseRegion(a)
	if err := e.acquireRegion(b); err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
}

func TestGenerateOverlappingRunsSerialized(t *testing.T) {
	e, _ := newTestEngine(t, Options{MaxConcurrentRuns: 4, Workers: 2})
	g := terrainGraph(t)

	// Same region from several goroutines: every run either commits or
	// reports the region busy, and at least one commits.
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed, busy := 0, 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			_, err := e.Generate(context.Background(), Request{
				Graph: g,
				Dim:   wfc.Dimensions{Width: 8, Depth: 8, Height: 8},
				Seed:  seed,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, ErrRegionBusy):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	if committed == 0 {
		t.Fatal("no run committed")
	}
	if committed+busy != 4 {
		t.Fatalf("accounted for %d runs, want 4", committed+busy)
	}
}

func TestGenerateDefaultBacktrackBudget(t *testing.T) {
	// Budget 0 falls back to the engine default, which is generous
	// enough for a trivially satisfiable solve.
	e, _ := newTestEngine(t, Options{DefaultBacktrackBudget: 100})
	_, err := e.Generate(context.Background(), Request{
		Graph: solverGraph(t),
		Dim:   wfc.Dimensions{Width: 2, Depth: 2, Height: 2},
		Seed:  5,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
}

func TestGenerateUnlimitedBudgetPassesThrough(t *testing.T) {
	// With a zero engine default, only a request-level unlimited budget
	// lets a solve that needs backtracking converge.
	e, _ := newTestEngine(t, Options{DefaultBacktrackBudget: 0})
	g, err := graph.New("trapped", []graph.Node{
		{ID: "walls", Kind: graph.KindSolver, Solver: &graph.SolverParams{Tileset: "trap"}},
		{ID: "out", Kind: graph.KindOutput, Inputs: []string{"walls"}},
	})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	for seed := int64(0); seed < 5; seed++ {
		_, err := e.Generate(context.Background(), Request{
			Graph:           g,
			Origin:          voxel.Pos{X: int(seed) * 8},
			Dim:             wfc.Dimensions{Width: 2, Depth: 1, Height: 1},
			Seed:            seed,
			BacktrackBudget: -1,
		})
		if err != nil {
			t.Fatalf("seed %d: unlimited budget run failed: %v", seed, err)
		}
	}
}

func TestGenerateCancelled(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Generate(ctx, Request{
		Graph: terrainGraph(t),
		Dim:   wfc.Dimensions{Width: 8, Depth: 8, Height: 8},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
