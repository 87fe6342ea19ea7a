package catalog

import (
	"fmt"
	"sort"
	"sync"

	"stratadb/core"
)

// Catalog is the set of currently visible parts of one table. Queries
// take atomic snapshots; a part removed from the catalog stays alive
// until every snapshot holding it is released.
type Catalog struct {
	mu    sync.RWMutex
	parts map[string]*Part
}

// NewCatalog creates an empty part catalog
func NewCatalog() *Catalog {
	return &Catalog{parts: make(map[string]*Part)}
}

// AddPart registers a part. The catalog holds its own reference.
func (c *Catalog) AddPart(part *Part) error {
	if err := part.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.parts[part.Name]; exists {
		return fmt.Errorf("part %s already registered", part.Name)
	}
	part.Retain()
	c.parts[part.Name] = part

	core.GetTracer().Debug(core.TraceComponentCatalog, "Registered part", core.TraceContext(
		"part", part.Name, "marks", part.MarksCount, "rows", part.RowCount))
	return nil
}

// RemovePart drops a part from the visible set. Outstanding snapshots
// keep it alive through their own references.
func (c *Catalog) RemovePart(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if part, exists := c.parts[name]; exists {
		delete(c.parts, name)
		part.Release()
	}
}

// Snapshot is the part set a query plans against. Release it when the
// query's streams are done.
type Snapshot struct {
	Parts []*Part

	releaseOnce sync.Once
}

// Release drops the snapshot's references on all parts.
func (s *Snapshot) Release() {
	s.releaseOnce.Do(func() {
		for _, part := range s.Parts {
			part.Release()
		}
	})
}

// GetDataParts returns an atomic snapshot of the visible parts, sorted
// by name for deterministic planning. Each part is retained on behalf
// of the snapshot.
func (c *Catalog) GetDataParts() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	parts := make([]*Part, 0, len(c.parts))
	for _, part := range c.parts {
		part.Retain()
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })
	return &Snapshot{Parts: parts}
}

// PartCount returns the number of visible parts.
func (c *Catalog) PartCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.parts)
}
