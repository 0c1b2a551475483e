package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lynthar/Voxelith/internal/config"
	"github.com/Lynthar/Voxelith/internal/engine"
	"github.com/Lynthar/Voxelith/internal/graph"
	"github.com/Lynthar/Voxelith/internal/tileset"
	"github.com/Lynthar/Voxelith/internal/voxel"
	"github.com/Lynthar/Voxelith/internal/wfc"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "path to configuration file")
		graphPath = flag.String("graph", "", "path to generator graph definition")
		originX   = flag.Int("x", 0, "region origin x")
		originY   = flag.Int("y", 0, "region origin y")
		originZ   = flag.Int("z", 0, "region origin z")
		width     = flag.Int("width", 32, "region width in voxels")
		depth     = flag.Int("depth", 32, "region depth in voxels")
		height    = flag.Int("height", 32, "region height in voxels")
		seed      = flag.Int64("seed", 0, "generation seed")
		budget    = flag.Int("budget", 0, "backtrack budget override (0 uses config default, negative unlimited)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *graphPath == "" {
		log.Fatal("a -graph definition is required")
	}

	var bounds *voxel.ChunkBounds
	if b := cfg.Store.Bounds; b != nil {
		bounds = &voxel.ChunkBounds{
			Min: voxel.ChunkCoord{X: b.Min[0], Y: b.Min[1], Z: b.Min[2]},
			Max: voxel.ChunkCoord{X: b.Max[0], Y: b.Max[1], Z: b.Max[2]},
		}
	}
	store, err := voxel.NewStore(cfg.Store.EdgeLength, voxel.StoreOptions{
		MaterializeOnGet: cfg.Store.MaterializeOnGet,
		Bounds:           bounds,
	})
	if err != nil {
		log.Fatalf("initialise store: %v", err)
	}

	registry := tileset.NewRegistry()
	if dir := cfg.Assets.TilesetDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			if err := registry.LoadDir(dir); err != nil {
				log.Fatalf("load tilesets: %v", err)
			}
		}
	}
	log.Printf("registered tilesets: %v", registry.Names())

	g, err := graph.Load(*graphPath)
	if err != nil {
		log.Fatalf("load graph: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	if timeout := cfg.Generation.RunTimeout.Duration(); timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, timeout)
		defer tcancel()
	}

	eng := engine.New(store, registry, engine.Options{
		MaxConcurrentRuns:      cfg.Generation.MaxConcurrentRuns,
		DefaultBacktrackBudget: cfg.Solver.DefaultBacktrackBudget,
		Workers:                cfg.Generation.Workers,
	})

	result, err := eng.Generate(ctx, engine.Request{
		Graph:           g,
		Origin:          voxel.Pos{X: *originX, Y: *originY, Z: *originZ},
		Dim:             wfc.Dimensions{Width: *width, Depth: *depth, Height: *height},
		Seed:            *seed,
		BacktrackBudget: *budget,
	})
	if err != nil {
		log.Fatalf("generation failed: %v", err)
	}

	if dir := cfg.Store.DataDir; dir != "" {
		disk := voxel.NewDiskStore(dir)
		saved, err := disk.SaveDirty(store)
		if err != nil {
			log.Fatalf("persist chunks: %v", err)
		}
		log.Printf("persisted %d chunks to %s", len(saved), dir)
	}

	log.Printf("done: %d chunks touched", len(result.Touched))
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
