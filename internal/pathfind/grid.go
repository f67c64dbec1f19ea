// Package pathfind derives a collision view of the current world and
// answers shortest-path queries over it with a cached A*.
package pathfind

import (
	"sync"

	"github.com/nrevox/growfleet/internal/items"
)

// Point is one tile coordinate of a path.
type Point struct {
	X, Y int
}

// cacheKey memoizes a full query, access flag included: the same pair of
// endpoints can be walkable for a keyholder and walled off for a guest.
type cacheKey struct {
	fromX, fromY int
	toX, toY     int
	hasAccess    bool
}

type cacheEntry struct {
	path  []Point // nil for the explicit "no path" marker
	found bool
}

// cacheSoftCap bounds the memo table. Insertion into a full cache clears
// it first; predictable and cheap beats LRU bookkeeping here.
const cacheSoftCap = 1000

// Grid is the derived collision grid plus the path cache. Locked as a
// unit; queries and tile updates may arrive from different goroutines.
type Grid struct {
	mu     sync.Mutex
	width  int
	height int
	cells  []uint8
	cache  map[cacheKey]cacheEntry
}

// New creates an empty grid.
func New() *Grid {
	return &Grid{cache: make(map[cacheKey]cacheEntry)}
}

// Rebuild replaces the grid wholesale, as after a world snapshot. The
// cache is cleared: every memoized path predates the new geometry.
func (g *Grid) Rebuild(width, height int, cells []uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.width = width
	g.height = height
	g.cells = make([]uint8, len(cells))
	copy(g.cells, cells)
	g.cache = make(map[cacheKey]cacheEntry)
}

// Clear empties the grid, as on world leave.
func (g *Grid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.width, g.height = 0, 0
	g.cells = nil
	g.cache = make(map[cacheKey]cacheEntry)
}

// Size returns the grid dimensions.
func (g *Grid) Size() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.width, g.height
}

// CellAt returns the collision code at (x, y); out of range reads 0.
func (g *Grid) CellAt(x, y int) uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return 0
	}
	return g.cells[y*g.width+x]
}

// UpdateSingleTile writes one collision cell and invalidates every cached
// path whose start or end lies within Chebyshev distance 1 of (x, y).
func (g *Grid) UpdateSingleTile(x, y int, code uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return
	}
	g.cells[y*g.width+x] = code

	for key := range g.cache {
		if chebyshev(key.fromX, key.fromY, x, y) <= 1 || chebyshev(key.toX, key.toY, x, y) <= 1 {
			delete(g.cache, key)
		}
	}
}

// CacheLen returns the number of memoized queries.
func (g *Grid) CacheLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

// blocked implements the walkability predicate. Code 3 is a door:
// passable only with access.
func (g *Grid) blocked(x, y int, hasAccess bool) bool {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return true
	}
	switch g.cells[y*g.width+x] {
	case items.CollisionSolid, items.CollisionBlocked:
		return true
	case items.CollisionDoor:
		return !hasAccess
	default:
		return false
	}
}

func chebyshev(x1, y1, x2, y2 int) int {
	dx := abs(x1 - x2)
	dy := abs(y1 - y2)
	return max(dx, dy)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
