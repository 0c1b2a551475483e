package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Lynthar/Voxelith/internal/graph"
	"github.com/Lynthar/Voxelith/internal/tileset"
	"github.com/Lynthar/Voxelith/internal/voxel"
	"github.com/Lynthar/Voxelith/internal/wfc"
)

// ErrRegionBusy reports that another generation run currently holds an
// overlapping chunk region. Callers retry once the other run finishes.
var ErrRegionBusy = errors.New("target region overlaps an active generation run")

// Request describes one generation run.
type Request struct {
	Graph  *graph.Graph
	Origin voxel.Pos
	Dim    wfc.Dimensions
	Seed   int64
	// BacktrackBudget overrides the engine default: zero means use the
	// default, negative means unlimited.
	BacktrackBudget int
	Constraints     []wfc.Constraint
	// Progress, when set, receives per-node completion fractions.
	Progress func(nodeID string, done, total int)
}

// Result reports a committed run: the chunk coordinates it touched.
type Result struct {
	Touched  []voxel.ChunkCoord
	Duration time.Duration
}

// Options tunes the engine.
type Options struct {
	// MaxConcurrentRuns caps simultaneous generation runs; 0 means 1.
	MaxConcurrentRuns int64
	// DefaultBacktrackBudget applies to requests that declare none.
	DefaultBacktrackBudget int
	// Workers bounds per-run field evaluation parallelism.
	Workers int
}

// Engine admits generation runs against one store, serializing runs
// whose chunk regions overlap.
type Engine struct {
	store    *voxel.Store
	registry *tileset.Registry
	opts     Options
	sem      *semaphore.Weighted

	mu     sync.Mutex
	active []voxel.ChunkBounds
}

// New creates an engine over the given store and registry.
func New(store *voxel.Store, registry *tileset.Registry, opts Options) *Engine {
	runs := opts.MaxConcurrentRuns
	if runs <= 0 {
		runs = 1
	}
	return &Engine{
		store:    store,
		registry: registry,
		opts:     opts,
		sem:      semaphore.NewWeighted(runs),
	}
}

// regionBounds computes the chunk box a request will write into.
func (e *Engine) regionBounds(req Request) voxel.ChunkBounds {
	edge := e.store.Edge()
	min := voxel.LocateChunk(req.Origin, edge)
	max := voxel.LocateChunk(voxel.Pos{
		X: req.Origin.X + req.Dim.Width - 1,
		Y: req.Origin.Y + req.Dim.Depth - 1,
		Z: req.Origin.Z + req.Dim.Height - 1,
	}, edge)
	return voxel.ChunkBounds{Min: min, Max: max}
}

func overlaps(a, b voxel.ChunkBounds) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

// acquireRegion registers the request's chunk box, rejecting overlap
// with any active run.
func (e *Engine) acquireRegion(bounds voxel.ChunkBounds) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.active {
		if overlaps(b, bounds) {
			return fmt.Errorf("chunks %v..%v: %w", bounds.Min, bounds.Max, ErrRegionBusy)
		}
	}
	e.active = append(e.active, bounds)
	return nil
}

func (e *Engine) releaseRegion(bounds voxel.ChunkBounds) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, b := range e.active {
		if b == bounds {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return
		}
	}
}

// Generate runs one request to completion. Cancellation through ctx
// leaves the store consistent: chunks are committed whole or not at
// all, and the run's working state is discarded.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Graph == nil {
		return nil, errors.New("generation request has no graph")
	}
	if req.Dim.Width <= 0 || req.Dim.Depth <= 0 || req.Dim.Height <= 0 {
		return nil, fmt.Errorf("generation dimensions must be positive, got %+v", req.Dim)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	bounds := e.regionBounds(req)
	if err := e.acquireRegion(bounds); err != nil {
		return nil, err
	}
	defer e.releaseRegion(bounds)

	budget := req.BacktrackBudget
	if budget == 0 {
		budget = e.opts.DefaultBacktrackBudget
	}

	start := time.Now()
	log.Printf("generation run: graph %q region %v+%dx%dx%d seed %d",
		req.Graph.Name, req.Origin, req.Dim.Width, req.Dim.Depth, req.Dim.Height, req.Seed)

	touched, err := req.Graph.Evaluate(ctx, graph.Env{
		Store:           e.store,
		Registry:        e.registry,
		Origin:          req.Origin,
		Dim:             req.Dim,
		Seed:            req.Seed,
		BacktrackBudget: budget,
		Constraints:     req.Constraints,
		Workers:         e.opts.Workers,
		Progress:        progressLogger(req.Progress),
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	log.Printf("generation run: graph %q touched %d chunks in %s", req.Graph.Name, len(touched), elapsed)
	return &Result{Touched: touched, Duration: elapsed}, nil
}

// progressLogger logs node progress at 10% steps and forwards to the
// caller's callback when present.
func progressLogger(next func(nodeID string, done, total int)) func(string, int, int) {
	lastPercent := make(map[string]int)
	var mu sync.Mutex
	return func(nodeID string, done, total int) {
		if total > 0 {
			percent := done * 100 / total
			mu.Lock()
			if percent >= lastPercent[nodeID]+10 || (percent == 100 && lastPercent[nodeID] != 100) {
				lastPercent[nodeID] = percent
				mu.Unlock()
				log.Printf("node %s progress: %d%%", nodeID, percent)
			} else {
				mu.Unlock()
			}
		}
		if next != nil {
			next(nodeID, done, total)
		}
	}
}
