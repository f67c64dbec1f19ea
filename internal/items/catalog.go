// Package items holds the shared item catalog. One catalog instance is
// injected into every agent; reads vastly outnumber writes (a write only
// happens when a server pushes a newer items.dat).
package items

import "sync"

// Collision codes taken from each item's catalog entry. The pathfinder
// interprets them; everything else treats them as opaque.
const (
	CollisionNone    = 0
	CollisionSolid   = 1
	CollisionDoor    = 3
	CollisionBlocked = 6
)

// Well-known item ids the runtime special-cases.
const (
	ItemFist   = 18  // punch
	ItemWrench = 32
	ItemGems   = 112 // drops of this id credit the gem balance
)

// Item is one catalog entry. The full file carries many more fields; the
// runtime only needs the ones that drive behavior.
type Item struct {
	ID            uint32
	Name          string
	ActionType    uint8
	CollisionType uint8
	BreakHits     uint8
	ClothingType  uint8
	GrowTime      uint32
}

// Seed reports whether the id belongs to the seed half of an item pair.
// Foreground ids are even; the odd successor is its seed.
func (i Item) Seed() bool {
	return i.ID%2 == 1
}

// Catalog is the read-mostly item database shared by all agents.
type Catalog struct {
	mu      sync.RWMutex
	items   map[uint32]Item
	version uint16
	hash    uint32
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{items: make(map[uint32]Item)}
}

// Replace atomically swaps the catalog contents.
func (c *Catalog) Replace(items []Item, version uint16, hash uint32) {
	next := make(map[uint32]Item, len(items))
	for _, it := range items {
		next[it.ID] = it
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = next
	c.version = version
	c.hash = hash
}

// Get returns the entry for id.
func (c *Catalog) Get(id uint32) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	return it, ok
}

// CollisionType returns the collision code for id, or CollisionNone for
// unknown items (air and anything not yet in the catalog walk alike).
func (c *Catalog) CollisionType(id uint32) uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[id].CollisionType
}

// ActionType returns the action type for id, or 0 when unknown.
func (c *Catalog) ActionType(id uint32) uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[id].ActionType
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Version returns the catalog file version.
func (c *Catalog) Version() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Hash returns the accumulator hash of the raw catalog file, as reported
// to the server during the handshake.
func (c *Catalog) Hash() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hash
}
