package catalog

import (
	"fmt"
	"sort"
)

// Hero is one row of the static reference roster. IDs are positive; 0 is
// reserved to mean "no hero" (a skipped ban slot).
type Hero struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Catalog is an immutable hero lookup shared read-only across sessions.
type Catalog struct {
	heroes []Hero
	byID   map[int]Hero
}

func New(heroes []Hero) (*Catalog, error) {
	if len(heroes) == 0 {
		return nil, fmt.Errorf("catalog: empty hero list")
	}
	byID := make(map[int]Hero, len(heroes))
	sorted := make([]Hero, len(heroes))
	copy(sorted, heroes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, h := range sorted {
		if h.ID <= 0 {
			return nil, fmt.Errorf("catalog: hero %q has invalid id %d", h.Name, h.ID)
		}
		if _, dup := byID[h.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate hero id %d", h.ID)
		}
		byID[h.ID] = h
	}
	return &Catalog{heroes: sorted, byID: byID}, nil
}

func (c *Catalog) Exists(id int) bool {
	_, ok := c.byID[id]
	return ok
}

func (c *Catalog) Get(id int) (Hero, bool) {
	h, ok := c.byID[id]
	return h, ok
}

// Heroes returns the roster sorted by id. Callers must not mutate it.
func (c *Catalog) Heroes() []Hero { return c.heroes }

func (c *Catalog) Len() int { return len(c.heroes) }

// LowestUnused returns the lowest hero id not present in used. This is the
// deterministic fallback for a pick turn that times out.
func (c *Catalog) LowestUnused(used map[int]bool) (int, bool) {
	for _, h := range c.heroes {
		if !used[h.ID] {
			return h.ID, true
		}
	}
	return 0, false
}
