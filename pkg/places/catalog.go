package places

import "strings"

// Catalog answers name searches over a loaded store. It is read-only and
// safe for concurrent use.
type Catalog struct {
	places []Place
	lower  []string
}

// Hit is one search result. ID is the place's position in the store.
type Hit struct {
	ID int
	Place
}

func NewCatalog(places []Place) *Catalog {
	lower := make([]string, len(places))
	for i, p := range places {
		lower[i] = strings.ToLower(p.Name)
	}
	return &Catalog{places: places, lower: lower}
}

// Len returns the number of places.
func (c *Catalog) Len() int { return len(c.places) }

// Get returns place id.
func (c *Catalog) Get(id int) (Place, bool) {
	if id < 0 || id >= len(c.places) {
		return Place{}, false
	}
	return c.places[id], true
}

// Search returns the places whose name contains q, case-insensitively, in
// store order, skipping offset matches and returning at most limit. total
// is the number of matches before paging.
func (c *Catalog) Search(q string, limit, offset int) (hits []Hit, total int) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil, 0
	}
	for i, name := range c.lower {
		if !strings.Contains(name, q) {
			continue
		}
		if total >= offset && len(hits) < limit {
			hits = append(hits, Hit{ID: i, Place: c.places[i]})
		}
		total++
	}
	return hits, total
}
