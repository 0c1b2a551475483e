package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Store.EdgeLength != 32 {
		t.Fatalf("default edge length %d, want 32", cfg.Store.EdgeLength)
	}
	if cfg.Solver.DefaultBacktrackBudget != 1000 {
		t.Fatalf("default backtrack budget %d, want 1000", cfg.Solver.DefaultBacktrackBudget)
	}
	if cfg.Generation.MaxConcurrentRuns != 2 {
		t.Fatalf("default concurrent runs %d, want 2", cfg.Generation.MaxConcurrentRuns)
	}
	if cfg.Generation.RunTimeout.Duration() != 10*time.Minute {
		t.Fatalf("default run timeout %v, want 10m", cfg.Generation.RunTimeout.Duration())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	doc := `{
  "store": {
    "edgeLength": 64,
    "materializeOnGet": true,
    "bounds": {"min": [-4, -4, 0], "max": [4, 4, 2]},
    "dataDir": "/tmp/world"
  },
  "solver": {"defaultBacktrackBudget": 50},
  "generation": {"maxConcurrentRuns": 8, "workers": 4, "runTimeout": "33ms"},
  "assets": {"tilesetDir": "packs/tiles", "graphDir": "packs/graphs"}
}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.EdgeLength != 64 || !cfg.Store.MaterializeOnGet {
		t.Fatalf("store config %+v", cfg.Store)
	}
	if cfg.Store.Bounds == nil || cfg.Store.Bounds.Min != [3]int{-4, -4, 0} {
		t.Fatalf("bounds %+v", cfg.Store.Bounds)
	}
	if cfg.Generation.RunTimeout.Duration() != 33*time.Millisecond {
		t.Fatalf("run timeout %v, want 33ms", cfg.Generation.RunTimeout.Duration())
	}
	if cfg.Assets.TilesetDir != "packs/tiles" {
		t.Fatalf("tileset dir %q", cfg.Assets.TilesetDir)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	doc := `{"store": {"edgeLength": 16}}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.EdgeLength != 16 {
		t.Fatalf("edge length %d, want 16", cfg.Store.EdgeLength)
	}
	if cfg.Solver.DefaultBacktrackBudget != 1000 {
		t.Fatalf("unset budget %d, want default 1000", cfg.Solver.DefaultBacktrackBudget)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"zero edge":       `{"store": {"edgeLength": 0}}`,
		"inverted bounds": `{"store": {"edgeLength": 32, "bounds": {"min": [1, 0, 0], "max": [0, 0, 0]}}}`,
		"negative budget": `{"solver": {"defaultBacktrackBudget": -1}}`,
		"zero runs":       `{"generation": {"maxConcurrentRuns": 0}}`,
		"bad json":        `{"store":`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDurationForms(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"1h30m"`), &d); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if d.Duration() != 90*time.Minute {
		t.Fatalf("parsed %v, want 90m", d.Duration())
	}

	if err := json.Unmarshal([]byte(`1500000000`), &d); err != nil {
		t.Fatalf("numeric form: %v", err)
	}
	if d.Duration() != 1500*time.Millisecond {
		t.Fatalf("parsed %v, want 1.5s", d.Duration())
	}

	if err := json.Unmarshal([]byte(`"bogus"`), &d); err == nil {
		t.Fatal("expected error for unparseable duration")
	}

	out, err := json.Marshal(Duration(250 * time.Millisecond))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"250ms"` {
		t.Fatalf("marshaled %s, want \"250ms\"", out)
	}
}
