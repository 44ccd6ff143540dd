package cascade

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/decaf-reliability/decaf/internal/model"
)

// Pattern is one inclusion/exclusion assignment over a type's cascading
// links. Bit b of Mask set means link b is included.
type Pattern struct {
	Mask        uint32
	Included    []int   // target types of the included links, in link order
	Probability float64 // Π p over included links
	Complement  float64 // Π (1 − p) over excluded links
}

// Weight is the probability of exactly this pattern occurring.
func (p Pattern) Weight() float64 { return p.Probability * p.Complement }

// Cache holds the power set of cascading patterns for every component type.
// It is immutable after construction and safe for concurrent reads.
type Cache struct {
	patterns [][]Pattern
}

// NewCache builds the power-set patterns of every type of m, one type per
// goroutine with at most workers running at once (workers <= 0 means no limit).
func NewCache(ctx context.Context, m *model.Model, workers int) (*Cache, error) {
	c := &Cache{patterns: make([][]Pattern, m.NumTypes())}

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for t := 0; t < m.NumTypes(); t++ {
		links := m.Component(t).Cascading
		if len(links) == 0 {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.patterns[t] = PowerSet(links)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c, nil
}

// PowerSet returns the 2^k patterns over links. Pattern i includes link b
// iff bit b of i is set, so pattern 0 is the all-excluded pattern.
func PowerSet(links []model.Link) []Pattern {
	if len(links) == 0 {
		return nil
	}
	n := 1 << len(links)
	out := make([]Pattern, n)
	for mask := 0; mask < n; mask++ {
		p := Pattern{Mask: uint32(mask), Probability: 1, Complement: 1}
		for b, l := range links {
			if mask&(1<<b) != 0 {
				p.Included = append(p.Included, l.Target)
				p.Probability *= l.Probability
			} else {
				p.Complement *= 1 - l.Probability
			}
		}
		out[mask] = p
	}
	return out
}

// Patterns returns the cached patterns of type t, or nil when t has no
// cascading links.
func (c *Cache) Patterns(t int) []Pattern { return c.patterns[t] }

// complement returns the excluded-link product of pattern i of type t.
func (c *Cache) complement(t, i int) float64 {
	ps := c.patterns[t]
	if len(ps) == 0 {
		return 1
	}
	return ps[i].Complement
}

// Size returns the total number of cached patterns.
func (c *Cache) Size() int {
	n := 0
	for _, ps := range c.patterns {
		n += len(ps)
	}
	return n
}
