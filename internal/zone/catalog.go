package zone

import "github.com/pkarrdns/pkarrdns/internal/dnswire"

// Catalog dispatches an incoming query to the authority whose origin is the
// longest matching suffix of the query name. A single-authority deployment
// (the common case) still goes through this for uniformity with a future
// multi-authority or forwarder-backed deployment.
type Catalog struct {
	entries []catalogEntry
}

type catalogEntry struct {
	origin    dnswire.Name
	authority *NodeAuthority
}

// NewCatalog builds a Catalog over the given authorities, indexing every
// origin each one serves.
func NewCatalog(authorities ...*NodeAuthority) *Catalog {
	c := &Catalog{}
	for _, a := range authorities {
		for _, origin := range a.AllOrigins() {
			c.entries = append(c.entries, catalogEntry{origin: origin, authority: a})
		}
	}
	return c
}

// Find returns the authority serving the longest origin suffix of name.
func (c *Catalog) Find(name dnswire.Name) (*NodeAuthority, bool) {
	var best dnswire.Name
	var bestAuth *NodeAuthority
	found := false
	for _, e := range c.entries {
		if !name.HasSuffix(e.origin) {
			continue
		}
		if found && e.origin.NumLabels() <= best.NumLabels() {
			continue
		}
		best, bestAuth, found = e.origin, e.authority, true
	}
	return bestAuth, found
}
