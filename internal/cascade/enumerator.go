package cascade

import (
	"context"
)

// Node is one failure event in a tree: a unit of Type induced by the node
// at arena index Parent (-1 for the root), which then chose Pattern over
// its own cascading links.
type Node struct {
	Type    int
	Parent  int
	Pattern int
}

// Tree is a completed failure tree handed to an emit callback. Delta and
// Nodes alias enumerator storage and are only valid during the callback.
type Tree struct {
	Root           int
	Delta          []int   // additional failed units per type, root included
	SubtreeRate    float64 // Π p over every included link in the tree
	ComplementRate float64 // Π (1 − p) over every excluded link of every node
	Nodes          []Node
}

// Weight is the probability of this exact tree given that Root failed.
func (t Tree) Weight() float64 { return t.SubtreeRate * t.ComplementRate }

// Stats tallies enumeration work. It is diagnostic only.
type Stats struct {
	Trees        uint64 // trees emitted
	AvoidedTrees uint64 // branches pruned without recursion
	Absorbed     uint64 // induced failures on a type with no unit left
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Trees += o.Trees
	s.AvoidedTrees += o.AvoidedTrees
	s.Absorbed += o.Absorbed
}

// EmitFunc receives every completed tree. Returning an error stops the
// enumeration.
type EmitFunc func(Tree) error

// Enumerator expands failure trees over a shared Cache. An Enumerator is not
// safe for concurrent use; create one per goroutine.
type Enumerator struct {
	cache      *Cache
	redundancy []int
	capacity   []int // units still available in the source state
	arena      []Node
	stats      Stats

	root int
	emit EmitFunc
}

// NewEnumerator returns an Enumerator bounded by the given redundancies.
func NewEnumerator(cache *Cache, redundancy []uint8) *Enumerator {
	red := make([]int, len(redundancy))
	for i, r := range redundancy {
		red[i] = int(r)
	}
	return &Enumerator{cache: cache, redundancy: red, capacity: make([]int, len(red))}
}

// Stats returns the counters accumulated so far.
func (e *Enumerator) Stats() Stats { return e.stats }

// Enumerate calls emit for every failure tree rooted at type root whose
// weight is non-zero, starting from a state with no failed unit.
func (e *Enumerator) Enumerate(ctx context.Context, root int, emit EmitFunc) error {
	return e.EnumerateFrom(ctx, root, nil, emit)
}

// EnumerateFrom is Enumerate for a source state with failed[t] units of
// type t already down (nil means none). An included link whose target has
// no available unit left still counts towards SubtreeRate but adds neither
// a failure nor a node, so the weights of the emitted trees sum to one.
// ctx is checked at every recursion boundary.
func (e *Enumerator) EnumerateFrom(ctx context.Context, root int, failed []int, emit EmitFunc) error {
	for t, r := range e.redundancy {
		e.capacity[t] = r
		if failed != nil {
			e.capacity[t] -= failed[t]
		}
	}
	if e.capacity[root] < 1 {
		return nil
	}
	e.root, e.emit = root, emit
	defer func() { e.emit = nil }()

	delta := make([]int, len(e.redundancy))
	delta[root] = 1
	e.arena = append(e.arena[:0], Node{Type: root, Parent: -1})
	return e.recurse(ctx, []int{0}, delta, 1)
}

// recurse expands one frontier level. frontier holds the arena indices of
// the leaves added by the previous level, delta the failures accumulated so
// far and subtree the product of included-link probabilities so far.
func (e *Enumerator) recurse(ctx context.Context, frontier, delta []int, subtree float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sizes := make([]int, len(frontier))
	for k, f := range frontier {
		sizes[k] = max(1, len(e.cache.Patterns(e.arena[f].Type)))
	}
	choice := make([]int, len(frontier))

	// The all-zero choice comes first: every leaf excludes every target,
	// which closes the tree at this level.
	if err := e.terminate(frontier, delta, subtree); err != nil {
		return err
	}
	for advance(choice, sizes) {
		if err := e.expand(ctx, frontier, choice, delta, subtree); err != nil {
			return err
		}
	}
	return nil
}

// terminate closes the tree with every frontier leaf choosing pattern 0.
func (e *Enumerator) terminate(frontier, delta []int, subtree float64) error {
	for _, f := range frontier {
		e.arena[f].Pattern = 0
	}
	comp := e.complementRate()
	if subtree*comp == 0 {
		e.stats.AvoidedTrees++
		return nil
	}
	e.stats.Trees++
	return e.emit(Tree{
		Root:           e.root,
		Delta:          delta,
		SubtreeRate:    subtree,
		ComplementRate: comp,
		Nodes:          e.arena,
	})
}

// expand applies one non-identity combination of frontier patterns and
// recurses into the targets it includes.
func (e *Enumerator) expand(ctx context.Context, frontier, choice, delta []int, subtree float64) error {
	mark := len(e.arena)
	defer func() { e.arena = e.arena[:mark] }()

	next := make([]int, 0, len(frontier))
	d := append([]int(nil), delta...)
	rate := subtree
	for k, f := range frontier {
		e.arena[f].Pattern = choice[k]
		if choice[k] == 0 {
			if e.cache.complement(e.arena[f].Type, 0) == 0 {
				e.stats.AvoidedTrees++
				return nil
			}
			continue
		}
		p := e.cache.Patterns(e.arena[f].Type)[choice[k]]
		if p.Weight() == 0 {
			e.stats.AvoidedTrees++
			return nil
		}
		rate *= p.Probability
		for _, tgt := range p.Included {
			if d[tgt] >= e.capacity[tgt] {
				e.stats.Absorbed++
				continue
			}
			d[tgt]++
			e.arena = append(e.arena, Node{Type: tgt, Parent: f})
			next = append(next, len(e.arena)-1)
		}
	}
	return e.recurse(ctx, next, d, rate)
}

// complementRate multiplies, over every node of the propagation history,
// the probability that each cascading link the node did not trigger indeed
// stayed silent.
func (e *Enumerator) complementRate() float64 {
	c := 1.0
	for _, n := range e.arena {
		c *= e.cache.complement(n.Type, n.Pattern)
	}
	return c
}

// advance steps choice to the next combination in odometer order and
// reports false once every combination has been visited.
func advance(choice, sizes []int) bool {
	for k := len(choice) - 1; k >= 0; k-- {
		choice[k]++
		if choice[k] < sizes[k] {
			return true
		}
		choice[k] = 0
	}
	return false
}
