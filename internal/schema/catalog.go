package schema

import (
	"fmt"
	"sync"
)

// Catalog caches the introspected schema of one connection. Reads take an
// immutable snapshot; a refresh rebuilds the schema off to the side and swaps
// the pointer, so readers in flight never observe a half-updated schema.
type Catalog struct {
	mu   sync.RWMutex
	snap *Schema
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Snapshot returns the current schema snapshot. Callers must treat the
// returned schema as read-only.
func (c *Catalog) Snapshot() (*Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil, fmt.Errorf("schema not introspected yet")
	}
	return c.snap, nil
}

// Loaded reports whether the catalog holds a snapshot.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap != nil
}

// Replace installs a freshly introspected schema as the new snapshot.
func (c *Catalog) Replace(s *Schema) {
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

// Invalidate drops the cached snapshot, forcing re-introspection.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}
