package tileset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Lynthar/Voxelith/internal/voxel"
)

// TileDef is the YAML form of one tile.
type TileDef struct {
	Name       string            `yaml:"name"`
	Weight     float64           `yaml:"weight"`
	Connectors map[string]string `yaml:"connectors"`
	// Symmetry declares which Z rotations are distinct: "none" (default)
	// keeps the tile as declared, "rot4" expands the four 90° variants.
	Symmetry string   `yaml:"symmetry"`
	Material uint16   `yaml:"material"`
	Color    [4]uint8 `yaml:"color"`
	Emissive bool     `yaml:"emissive"`
}

// CompatDef is a directed compatibility override supplementing connector
// matching. Mutual rules add the mirrored relation as well; a one-sided
// rule yields an asymmetric table and is rejected at load.
type CompatDef struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Direction string `yaml:"direction"`
	Mutual    bool   `yaml:"mutual"`
}

// SetDef is the YAML form of a complete tileset.
type SetDef struct {
	Name   string      `yaml:"name"`
	Tiles  []TileDef   `yaml:"tiles"`
	Compat []CompatDef `yaml:"compat"`
}

func parseDirection(s string) (Direction, error) {
	for d := Direction(0); d < NumDirections; d++ {
		if directionNames[d] == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// rotateZ returns connectors rotated 90° counterclockwise about Z,
// applied k times.
func rotateZ(conn [NumDirections]string, k int) [NumDirections]string {
	for ; k > 0; k-- {
		next := conn
		next[DirYPos] = conn[DirXPos]
		next[DirXNeg] = conn[DirYPos]
		next[DirYNeg] = conn[DirXNeg]
		next[DirXPos] = conn[DirYNeg]
		conn = next
	}
	return conn
}

// expand turns tile definitions into concrete tiles, generating the
// distinct Z-rotation variants declared by each tile's symmetry group.
func expand(def SetDef) ([]Tile, error) {
	var tiles []Tile
	for _, td := range def.Tiles {
		if td.Name == "" {
			return nil, fmt.Errorf("%w: tileset %q contains an unnamed tile", ErrInvalidTileSet, def.Name)
		}
		var conn [NumDirections]string
		for key, label := range td.Connectors {
			d, err := parseDirection(key)
			if err != nil {
				return nil, fmt.Errorf("%w: tile %q: %v", ErrInvalidTileSet, td.Name, err)
			}
			conn[d] = label
		}
		cell := voxel.Cell{
			Material: td.Material,
			R:        td.Color[0],
			G:        td.Color[1],
			B:        td.Color[2],
			A:        td.Color[3],
		}
		if td.Emissive {
			cell.Flags |= voxel.FlagEmissive
		}

		rotations := 1
		switch td.Symmetry {
		case "", "none":
		case "rot4":
			rotations = 4
		default:
			return nil, fmt.Errorf("%w: tile %q declares unknown symmetry %q", ErrInvalidTileSet, td.Name, td.Symmetry)
		}

		seen := make(map[[NumDirections]string]bool, rotations)
		for k := 0; k < rotations; k++ {
			rotated := rotateZ(conn, k)
			if seen[rotated] {
				continue
			}
			seen[rotated] = true
			name := td.Name
			if k > 0 {
				name = fmt.Sprintf("%s/%d", td.Name, k*90)
			}
			tiles = append(tiles, Tile{
				Name:       name,
				Weight:     td.Weight,
				Connectors: rotated,
				Cell:       cell,
			})
		}
	}
	return tiles, nil
}

// Build expands a definition and derives its compatibility table,
// validating eagerly.
func Build(def SetDef) (*TileSet, error) {
	tiles, err := expand(def)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(tiles))
	for id, t := range tiles {
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tile name %q", ErrInvalidTileSet, t.Name)
		}
		byName[t.Name] = id
	}

	var extras []extraRule
	for _, cd := range def.Compat {
		from, ok := byName[cd.From]
		if !ok {
			return nil, fmt.Errorf("%w: compat rule references unknown tile %q", ErrInvalidTileSet, cd.From)
		}
		to, ok := byName[cd.To]
		if !ok {
			return nil, fmt.Errorf("%w: compat rule references unknown tile %q", ErrInvalidTileSet, cd.To)
		}
		d, err := parseDirection(cd.Direction)
		if err != nil {
			return nil, fmt.Errorf("%w: compat rule: %v", ErrInvalidTileSet, err)
		}
		extras = append(extras, extraRule{from: from, to: to, dir: d})
		if cd.Mutual {
			extras = append(extras, extraRule{from: to, to: from, dir: d.Opposite()})
		}
	}

	return newTileSet(def.Name, tiles, extras)
}

// Registry keeps validated tilesets by name.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]*TileSet
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*TileSet)}
}

// Add validates and registers a tileset definition.
func (r *Registry) Add(def SetDef) (*TileSet, error) {
	ts, err := Build(def)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sets[ts.Name] = ts
	r.mu.Unlock()
	return ts, nil
}

// Get returns a registered tileset.
func (r *Registry) Get(name string) (*TileSet, error) {
	r.mu.RLock()
	ts, ok := r.sets[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tileset %q not registered", name)
	}
	return ts, nil
}

// Names lists registered tileset names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// LoadFile reads and registers one YAML tileset definition.
func (r *Registry) LoadFile(path string) (*TileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tileset: %w", err)
	}
	var def SetDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse tileset %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = filepath.Base(path)
	}
	ts, err := r.Add(def)
	if err != nil {
		return nil, fmt.Errorf("tileset %s: %w", path, err)
	}
	return ts, nil
}

// LoadDir registers every .yaml/.yml tileset beneath dir.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read tileset directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if _, err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
