package graph

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Lynthar/Voxelith/internal/noise"
)

var (
	// ErrCycle reports a generator graph whose edges form a cycle. It is
	// raised at load time, before any node evaluates.
	ErrCycle = errors.New("generator graph contains a cycle")

	// ErrInvalidGraph reports structural problems other than cycles:
	// unknown kinds, bad input counts, or output-kind mismatches.
	ErrInvalidGraph = errors.New("invalid generator graph")
)

// Kind tags a node variant. The evaluator handles each kind
// exhaustively.
type Kind string

const (
	KindNoise     Kind = "noise"
	KindSolver    Kind = "solver"
	KindShape     Kind = "shape"
	KindCombine   Kind = "combine"
	KindTransform Kind = "transform"
	KindOutput    Kind = "output"
)

// ValueKind classifies what a node produces on its output edge.
type ValueKind int

const (
	ValueVoxelField ValueKind = iota
	ValueScalarField
)

// NoiseParams configures a noise node.
type NoiseParams struct {
	Noise noise.Params `yaml:"noise"`
	// Mode selects the materialization: "heightfield" fills columns below
	// base+sample, "density" fills cells where the 3D sample exceeds
	// Threshold, "scalar" emits the raw scalar field.
	Mode      string   `yaml:"mode"`
	Base      float64  `yaml:"base"`
	Threshold float64  `yaml:"threshold"`
	Material  uint16   `yaml:"material"`
	Color     [4]uint8 `yaml:"color"`
}

// SolverParams configures a constraint-solver node.
type SolverParams struct {
	Tileset string `yaml:"tileset"`
	// Seed is added to the request seed so sibling solver nodes draw
	// from distinct deterministic streams.
	Seed          int64 `yaml:"seed"`
	MaxBacktracks *int  `yaml:"maxBacktracks"`
}

// ShapeParams materializes a scalar field into voxels.
type ShapeParams struct {
	// Mode selects the conversion: "heightfield" fills columns below
	// base+value, "density" fills cells whose value exceeds Threshold.
	Mode      string   `yaml:"mode"`
	Base      float64  `yaml:"base"`
	Threshold float64  `yaml:"threshold"`
	Material  uint16   `yaml:"material"`
	Color     [4]uint8 `yaml:"color"`
}

// CombineParams configures a merge node.
type CombineParams struct {
	// Op is one of "union", "subtract", "intersect". Input declaration
	// order is the priority order, first highest.
	Op string `yaml:"op"`
}

// TransformParams repositions an input field.
type TransformParams struct {
	Translate [3]int `yaml:"translate"`
	// RotateZ is in degrees and must be a multiple of 90.
	RotateZ int `yaml:"rotateZ"`
	// Scale is a uniform positive integer factor; 0 means 1.
	Scale int `yaml:"scale"`
}

// OutputParams controls commitment into the store.
type OutputParams struct {
	// Mode "merge" (default) writes only non-empty cells; "replace"
	// writes every cell in the field's bounds.
	Mode string `yaml:"mode"`
}

// Node is one tagged variant in the flat node list. Inputs reference
// other nodes by identifier, never by containment.
type Node struct {
	ID        string           `yaml:"id"`
	Kind      Kind             `yaml:"kind"`
	Inputs    []string         `yaml:"inputs"`
	Noise     *NoiseParams     `yaml:"noise"`
	Solver    *SolverParams    `yaml:"solver"`
	Shape     *ShapeParams     `yaml:"shape"`
	Combine   *CombineParams   `yaml:"combine"`
	Transform *TransformParams `yaml:"transform"`
	Output    *OutputParams    `yaml:"output"`
}

// outputKind returns what the node produces.
func (n *Node) outputKind() ValueKind {
	if n.Kind == KindNoise && n.Noise != nil && n.Noise.Mode == "scalar" {
		return ValueScalarField
	}
	return ValueVoxelField
}

// Graph is a flat, indexable collection of nodes plus id-based edges.
type Graph struct {
	Name  string
	nodes []Node
	index map[string]int
	order []int
}

type graphDef struct {
	Name  string `yaml:"name"`
	Nodes []Node `yaml:"nodes"`
}

// Load reads and validates a YAML graph definition.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	var def graphDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse graph %s: %w", path, err)
	}
	return New(def.Name, def.Nodes)
}

// New validates nodes and edges, computes the evaluation order and
// rejects cycles, all before any node can execute.
func New(name string, nodes []Node) (*Graph, error) {
	g := &Graph{
		Name:  name,
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
	}
	for i, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrInvalidGraph, i)
		}
		if _, dup := g.index[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
		}
		g.index[n.ID] = i
	}
	for i := range nodes {
		if err := g.validateNode(&nodes[i]); err != nil {
			return nil, err
		}
	}
	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func (g *Graph) validateNode(n *Node) error {
	wantInputs := func(min, max int) error {
		if len(n.Inputs) < min || (max >= 0 && len(n.Inputs) > max) {
			return fmt.Errorf("%w: node %q (%s) has %d inputs", ErrInvalidGraph, n.ID, n.Kind, len(n.Inputs))
		}
		return nil
	}
	for _, in := range n.Inputs {
		src, ok := g.index[in]
		if !ok {
			return fmt.Errorf("%w: node %q references unknown input %q", ErrInvalidGraph, n.ID, in)
		}
		scalar := g.nodes[src].outputKind() == ValueScalarField
		if n.Kind == KindShape && !scalar {
			return fmt.Errorf("%w: node %q consumes %q which produces a voxel field, not a scalar field",
				ErrInvalidGraph, n.ID, in)
		}
		if n.Kind != KindShape && scalar {
			return fmt.Errorf("%w: node %q consumes %q which produces a scalar field, not a voxel field",
				ErrInvalidGraph, n.ID, in)
		}
	}

	switch n.Kind {
	case KindNoise:
		if n.Noise == nil {
			return fmt.Errorf("%w: noise node %q missing parameters", ErrInvalidGraph, n.ID)
		}
		switch n.Noise.Mode {
		case "heightfield", "density", "scalar":
		default:
			return fmt.Errorf("%w: noise node %q has unknown mode %q", ErrInvalidGraph, n.ID, n.Noise.Mode)
		}
		return wantInputs(0, 0)
	case KindSolver:
		if n.Solver == nil || n.Solver.Tileset == "" {
			return fmt.Errorf("%w: solver node %q missing tileset", ErrInvalidGraph, n.ID)
		}
		return wantInputs(0, 0)
	case KindShape:
		if n.Shape == nil {
			return fmt.Errorf("%w: shape node %q missing parameters", ErrInvalidGraph, n.ID)
		}
		switch n.Shape.Mode {
		case "heightfield", "density":
		default:
			return fmt.Errorf("%w: shape node %q has unknown mode %q", ErrInvalidGraph, n.ID, n.Shape.Mode)
		}
		return wantInputs(1, 1)
	case KindCombine:
		if n.Combine == nil {
			return fmt.Errorf("%w: combine node %q missing parameters", ErrInvalidGraph, n.ID)
		}
		switch n.Combine.Op {
		case "union", "subtract", "intersect":
		default:
			return fmt.Errorf("%w: combine node %q has unknown op %q", ErrInvalidGraph, n.ID, n.Combine.Op)
		}
		return wantInputs(2, -1)
	case KindTransform:
		if n.Transform == nil {
			return fmt.Errorf("%w: transform node %q missing parameters", ErrInvalidGraph, n.ID)
		}
		if n.Transform.RotateZ%90 != 0 {
			return fmt.Errorf("%w: transform node %q rotation %d is not a multiple of 90", ErrInvalidGraph, n.ID, n.Transform.RotateZ)
		}
		if n.Transform.Scale < 0 {
			return fmt.Errorf("%w: transform node %q has negative scale", ErrInvalidGraph, n.ID)
		}
		return wantInputs(1, 1)
	case KindOutput:
		if n.Output != nil {
			switch n.Output.Mode {
			case "", "merge", "replace":
			default:
				return fmt.Errorf("%w: output node %q has unknown mode %q", ErrInvalidGraph, n.ID, n.Output.Mode)
			}
		}
		return wantInputs(1, 1)
	default:
		return fmt.Errorf("%w: node %q has unknown kind %q", ErrInvalidGraph, n.ID, n.Kind)
	}
}

// topoSort orders nodes so every input evaluates before its consumer,
// keeping declaration order among ready nodes for reproducibility.
func (g *Graph) topoSort() ([]int, error) {
	remaining := make([]int, len(g.nodes))
	for i, n := range g.nodes {
		remaining[i] = len(n.Inputs)
	}
	consumers := make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		for _, in := range n.Inputs {
			src := g.index[in]
			consumers[src] = append(consumers[src], i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	done := make([]bool, len(g.nodes))
	for len(order) < len(g.nodes) {
		progressed := false
		for i := range g.nodes {
			if done[i] || remaining[i] > 0 {
				continue
			}
			done[i] = true
			order = append(order, i)
			for _, c := range consumers[i] {
				remaining[c]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for i := range g.nodes {
				if !done[i] {
					stuck = append(stuck, g.nodes[i].ID)
				}
			}
			return nil, fmt.Errorf("%w: involving nodes %s", ErrCycle, strings.Join(stuck, ", "))
		}
	}
	return order, nil
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}
