package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Duration is a JSON-friendly wrapper around time.Duration that accepts
// human readable strings such as "150ms" in configuration files while
// still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms")
// or a numeric value representing nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		if s == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration: parse %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// Config captures the tunable parameters needed to bootstrap the
// generation engine.
type Config struct {
	Store      StoreConfig      `json:"store"`
	Solver     SolverConfig     `json:"solver"`
	Generation GenerationConfig `json:"generation"`
	Assets     AssetConfig      `json:"assets"`
}

type StoreConfig struct {
	// EdgeLength is the cubic chunk edge in cells, typically 32 or 64.
	EdgeLength       int         `json:"edgeLength"`
	MaterializeOnGet bool        `json:"materializeOnGet"`
	Bounds           *BoundsSpec `json:"bounds"`
	// DataDir, when set, is where dirty chunks are persisted.
	DataDir string `json:"dataDir"`
}

type BoundsSpec struct {
	Min [3]int `json:"min"`
	Max [3]int `json:"max"`
}

type SolverConfig struct {
	// DefaultBacktrackBudget caps backtrack steps for requests that
	// declare none.
	DefaultBacktrackBudget int `json:"defaultBacktrackBudget"`
}

type GenerationConfig struct {
	MaxConcurrentRuns int64 `json:"maxConcurrentRuns"`
	// Workers bounds per-run parallel field evaluation; 0 uses GOMAXPROCS.
	Workers int `json:"workers"`
	// RunTimeout aborts a run exceeding it; 0 disables the limit.
	RunTimeout Duration `json:"runTimeout"`
}

type AssetConfig struct {
	// TilesetDir is scanned for YAML tileset definitions at startup.
	TilesetDir string `json:"tilesetDir"`
	GraphDir   string `json:"graphDir"`
}

// Load reads configuration from a JSON file if provided. An empty path
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Store: StoreConfig{
			EdgeLength:       32,
			MaterializeOnGet: false,
		},
		Solver: SolverConfig{
			DefaultBacktrackBudget: 1000,
		},
		Generation: GenerationConfig{
			MaxConcurrentRuns: 2,
			Workers:           0,
			RunTimeout:        Duration(10 * time.Minute),
		},
		Assets: AssetConfig{
			TilesetDir: "assets/tilesets",
			GraphDir:   "assets/graphs",
		},
	}
}

func (c *Config) Validate() error {
	if c.Store.EdgeLength <= 0 {
		return errors.New("store.edgeLength must be positive")
	}
	if c.Store.Bounds != nil {
		for axis := 0; axis < 3; axis++ {
			if c.Store.Bounds.Min[axis] > c.Store.Bounds.Max[axis] {
				return errors.New("store.bounds min must not exceed max")
			}
		}
	}
	if c.Solver.DefaultBacktrackBudget < 0 {
		return errors.New("solver.defaultBacktrackBudget cannot be negative")
	}
	if c.Generation.MaxConcurrentRuns <= 0 {
		return errors.New("generation.maxConcurrentRuns must be positive")
	}
	if c.Generation.Workers < 0 {
		return errors.New("generation.workers cannot be negative")
	}
	return nil
}
