package wfc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/Lynthar/Voxelith/internal/tileset"
)

var (
	// ErrUnsatisfiable reports that no valid assignment exists under the
	// given constraints: either a seed constraint is immediately
	// contradictory or the decision stack was exhausted.
	ErrUnsatisfiable = errors.New("unsatisfiable constraints")

	// ErrBacktrackBudget reports that the configured backtrack budget
	// ran out before the search finished. More effort might succeed.
	ErrBacktrackBudget = errors.New("backtrack budget exceeded")

	errContradiction = errors.New("propagation contradiction")
)

// Constraint pre-restricts one slot to the listed tile ids before the
// solve starts.
type Constraint struct {
	X, Y, Z int
	Tiles   []int
}

// Config describes one solve invocation. The RNG derived from Seed and
// the working grid are private to the call, so concurrent solves with
// distinct configs never share mutable state.
type Config struct {
	TileSet *tileset.TileSet
	Dim     Dimensions
	Seed    int64
	// MaxBacktracks caps decision undo steps. Negative means unlimited.
	MaxBacktracks int
	Constraints   []Constraint
	// Progress, when set, receives the collapsed slot count after every
	// collapse or backtrack step.
	Progress func(collapsed, total int)
}

// frame records one collapse decision: the slot, the chosen tile, the
// candidates not yet tried there, and a snapshot of every candidate
// set touched while the decision propagated.
type frame struct {
	slot    int
	choice  int
	untried tileset.Mask
	saved   map[int]tileset.Mask
}

// Solver runs entropy-guided collapse with propagation and explicit
// stack-based backtracking over one grid.
type Solver struct {
	cfg        Config
	grid       *Grid
	rng        *rand.Rand
	stack      []frame
	queue      []int
	queued     []bool
	backtracks int
}

// NewSolver validates the config and builds the working grid.
func NewSolver(cfg Config) (*Solver, error) {
	if cfg.TileSet == nil {
		return nil, errors.New("solver requires a tileset")
	}
	if cfg.Dim.Width <= 0 || cfg.Dim.Depth <= 0 || cfg.Dim.Height <= 0 {
		return nil, fmt.Errorf("solver dimensions must be positive, got %+v", cfg.Dim)
	}
	g := newGrid(cfg.TileSet, cfg.Dim)
	return &Solver{
		cfg:    cfg,
		grid:   g,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		queued: make([]bool, cfg.Dim.Volume()),
	}, nil
}

// Backtracks returns the number of undo steps taken so far.
func (s *Solver) Backtracks() int {
	return s.backtracks
}

// Solve runs the search to completion, returning one tile id per slot
// in linear index order (x fastest, then y, then z).
func (s *Solver) Solve(ctx context.Context) ([]int, error) {
	if err := s.applyConstraints(ctx); err != nil {
		return nil, err
	}

	total := s.grid.dim.Volume()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx := s.pickSlot()
		if idx < 0 {
			return s.assignments(), nil
		}

		choice := s.sample(idx)
		s.pushDecision(idx, choice)
		fr := &s.stack[len(s.stack)-1]

		if err := s.propagate(ctx, fr); err != nil {
			if !errors.Is(err, errContradiction) {
				return nil, err
			}
			if err := s.backtrack(ctx); err != nil {
				return nil, err
			}
		}

		if s.cfg.Progress != nil {
			s.cfg.Progress(total-s.grid.undecided, total)
		}
	}
}

// applyConstraints narrows seeded slots and runs the initial
// propagation pass. Contradictions here fail without a decision stack.
func (s *Solver) applyConstraints(ctx context.Context) error {
	for _, c := range s.cfg.Constraints {
		idx, ok := s.grid.index(c.X, c.Y, c.Z)
		if !ok {
			return fmt.Errorf("constraint at (%d,%d,%d) outside grid %+v", c.X, c.Y, c.Z, s.grid.dim)
		}
		allowed := tileset.NewMask(s.cfg.TileSet.TileCount())
		for _, t := range c.Tiles {
			if t < 0 || t >= s.cfg.TileSet.TileCount() {
				return fmt.Errorf("constraint at (%d,%d,%d) names unknown tile id %d", c.X, c.Y, c.Z, t)
			}
			allowed.Set(t)
		}
		narrowed := s.grid.slots[idx].candidates.Clone()
		narrowed.IntersectWith(allowed)
		if narrowed.Empty() {
			return fmt.Errorf("seed constraint at (%d,%d,%d) empties the slot: %w", c.X, c.Y, c.Z, ErrUnsatisfiable)
		}
		s.grid.setCandidates(idx, narrowed)
		s.enqueue(idx)
	}
	if err := s.propagate(ctx, nil); err != nil {
		if errors.Is(err, errContradiction) {
			return fmt.Errorf("seed constraints conflict: %w", ErrUnsatisfiable)
		}
		return err
	}
	return nil
}

// pickSlot selects the undecided slot with minimum weighted entropy.
// Ties break toward the lowest linear index for reproducibility.
func (s *Solver) pickSlot() int {
	best := -1
	bestEntropy := 0.0
	for i := range s.grid.slots {
		if s.grid.slots[i].candidates.Count() <= 1 {
			continue
		}
		if best < 0 || s.grid.slots[i].entropy < bestEntropy {
			best = i
			bestEntropy = s.grid.slots[i].entropy
		}
	}
	return best
}

// sample draws one tile from the slot's candidates, weighted by tile
// weight, walking candidates in ascending tile-id order.
func (s *Solver) sample(idx int) int {
	cand := s.grid.slots[idx].candidates
	total := 0.0
	cand.ForEach(func(t int) bool {
		total += s.cfg.TileSet.Weight(t)
		return true
	})
	target := s.rng.Float64() * total
	choice := -1
	cand.ForEach(func(t int) bool {
		choice = t
		w := s.cfg.TileSet.Weight(t)
		if target < w {
			return false
		}
		target -= w
		return true
	})
	return choice
}

func (s *Solver) pushDecision(idx, choice int) {
	cand := s.grid.slots[idx].candidates
	untried := cand.Clone()
	untried.Clear(choice)
	fr := frame{
		slot:    idx,
		choice:  choice,
		untried: untried,
		saved:   map[int]tileset.Mask{idx: cand.Clone()},
	}
	s.stack = append(s.stack, fr)

	only := tileset.NewMask(s.cfg.TileSet.TileCount())
	only.Set(choice)
	s.grid.setCandidates(idx, only)
	s.enqueue(idx)
}

func (s *Solver) enqueue(idx int) {
	if s.queued[idx] {
		return
	}
	s.queued[idx] = true
	s.queue = append(s.queue, idx)
}

func (s *Solver) resetQueue() {
	for _, idx := range s.queue {
		s.queued[idx] = false
	}
	s.queue = s.queue[:0]
}

// propagate drains the work queue breadth-first, removing neighbor
// candidates left without support. Touched candidate sets are
// snapshotted into fr before their first change; fr may be nil during
// root-level (unrecoverable) passes.
func (s *Solver) propagate(ctx context.Context, fr *frame) error {
	for len(s.queue) > 0 {
		if err := ctx.Err(); err != nil {
			s.resetQueue()
			return err
		}
		u := s.queue[0]
		s.queue = s.queue[1:]
		s.queued[u] = false

		for d := tileset.Direction(0); d < tileset.NumDirections; d++ {
			v, ok := s.grid.neighbor(u, d)
			if !ok {
				continue
			}
			allowed := s.grid.support(u, d)
			current := s.grid.slots[v].candidates
			narrowed := current.Clone()
			if !narrowed.IntersectWith(allowed) {
				continue
			}
			if fr != nil {
				if _, seen := fr.saved[v]; !seen {
					fr.saved[v] = current
				}
			}
			s.grid.setCandidates(v, narrowed)
			if narrowed.Empty() {
				s.resetQueue()
				return errContradiction
			}
			s.enqueue(v)
		}
	}
	return nil
}

// backtrack pops decision frames until an untried alternative remains,
// restoring snapshotted candidate sets and banning the failed choice.
func (s *Solver) backtrack(ctx context.Context) error {
	for {
		if len(s.stack) == 0 {
			return fmt.Errorf("decision stack exhausted after %d backtracks: %w", s.backtracks, ErrUnsatisfiable)
		}
		s.backtracks++
		if s.cfg.MaxBacktracks >= 0 && s.backtracks > s.cfg.MaxBacktracks {
			return fmt.Errorf("gave up after %d backtracks: %w", s.cfg.MaxBacktracks, ErrBacktrackBudget)
		}

		fr := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		for idx, mask := range fr.saved {
			s.grid.setCandidates(idx, mask)
		}
		if fr.untried.Empty() {
			continue
		}

		// Ban the failed choice for this attempt and re-propagate the
		// narrowed slot under the parent frame.
		var parent *frame
		if len(s.stack) > 0 {
			parent = &s.stack[len(s.stack)-1]
			if _, seen := parent.saved[fr.slot]; !seen {
				parent.saved[fr.slot] = s.grid.slots[fr.slot].candidates
			}
		}
		s.grid.setCandidates(fr.slot, fr.untried.Clone())
		s.enqueue(fr.slot)
		if err := s.propagate(ctx, parent); err != nil {
			if errors.Is(err, errContradiction) {
				continue
			}
			return err
		}
		return nil
	}
}

func (s *Solver) assignments() []int {
	out := make([]int, len(s.grid.slots))
	for i := range s.grid.slots {
		out[i] = s.grid.slots[i].candidates.Lowest()
	}
	return out
}
