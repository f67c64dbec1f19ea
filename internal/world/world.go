package world

import (
	"fmt"
	"math"
	"sync"

	"github.com/nrevox/growfleet/internal/constants"
	"github.com/nrevox/growfleet/internal/items"
)

// World mirrors the authoritative state of the world the agent stands in.
// Guarded by its own lock; when both the world and the inventory must be
// held, the world lock is acquired first.
type World struct {
	mu sync.RWMutex

	name           string
	width          uint32
	height         uint32
	tiles          []Tile
	baseWeather    uint16
	currentWeather uint16

	drops   []DroppedItem
	lastUID uint32
}

// NewWorld creates an empty placeholder world named the EXIT sentinel.
func NewWorld() *World {
	return &World{name: constants.ExitWorld}
}

// Name returns the world name, or the EXIT sentinel when not in a world.
func (w *World) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Loaded reports whether a snapshot has been applied.
func (w *World) Loaded() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name != constants.ExitWorld && len(w.tiles) > 0
}

// Size returns width and height in tiles.
func (w *World) Size() (uint32, uint32) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.width, w.height
}

// Weather returns the base and current weather ids.
func (w *World) Weather() (uint16, uint16) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.baseWeather, w.currentWeather
}

// SetCurrentWeather updates the active weather.
func (w *World) SetCurrentWeather(id uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentWeather = id
}

// Reset drops all world state, returning to the EXIT sentinel.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = constants.ExitWorld
	w.width, w.height = 0, 0
	w.tiles = nil
	w.drops = nil
	w.lastUID = 0
	w.baseWeather, w.currentWeather = 0, 0
}

// replace installs freshly parsed snapshot contents.
func (w *World) replace(s *snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = s.name
	w.width = s.width
	w.height = s.height
	w.tiles = s.tiles
	w.baseWeather = s.baseWeather
	w.currentWeather = s.currentWeather
	w.drops = s.drops
	w.lastUID = s.lastUID
}

func (w *World) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || uint32(x) >= w.width || uint32(y) >= w.height {
		return 0, false
	}
	return y*int(w.width) + x, true
}

// TileAt returns a copy of the tile at (x, y).
func (w *World) TileAt(x, y int) (Tile, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i, ok := w.index(x, y)
	if !ok {
		return Tile{}, false
	}
	return w.tiles[i], true
}

// ForegroundAt returns the foreground item id at (x, y), 0 out of range.
func (w *World) ForegroundAt(x, y int) uint16 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i, ok := w.index(x, y)
	if !ok {
		return 0
	}
	return w.tiles[i].Foreground
}

// TileChange is the outcome of a tile mutation, reported so the caller
// can update the derived collision grid and fire events.
type TileChange struct {
	X, Y       int
	Foreground uint16
	Background uint16
	Collision  uint8
}

// ApplyPunch clears the foreground of (x, y), or the background when no
// foreground is present. The collision cell always drops to passable.
func (w *World) ApplyPunch(x, y int) (TileChange, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index(x, y)
	if !ok {
		return TileChange{}, fmt.Errorf("punch at (%d,%d): outside %dx%d world", x, y, w.width, w.height)
	}

	t := &w.tiles[i]
	if t.Foreground != 0 {
		t.ClearForeground()
	} else {
		t.Background = 0
	}
	return TileChange{X: x, Y: y, Foreground: t.Foreground, Background: t.Background, Collision: items.CollisionNone}, nil
}

// ApplyPlace sets the placed item into (x, y). Background-type actions
// (18, 22, 28) set the background layer; everything else sets the
// foreground, and odd ids become a fresh unharvestable seed.
func (w *World) ApplyPlace(x, y int, item items.Item) (TileChange, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index(x, y)
	if !ok {
		return TileChange{}, fmt.Errorf("place at (%d,%d): outside %dx%d world", x, y, w.width, w.height)
	}

	t := &w.tiles[i]
	switch item.ActionType {
	case ActionBackground, ActionSFXBackground, ActionToggleBackground:
		t.Background = uint16(item.ID)
	default:
		t.Foreground = uint16(item.ID)
		if item.ID%2 == 1 {
			t.Extra = TileExtra{Kind: ExtraSeed}
		} else {
			t.Extra = TileExtra{Kind: ExtraKindForAction(item.ActionType)}
		}
	}
	return TileChange{X: x, Y: y, Foreground: t.Foreground, Background: t.Background, Collision: item.CollisionType}, nil
}

// ApplyTileUpdate re-parses one tile record sent by the server.
func (w *World) ApplyTileUpdate(x, y int, data []byte, catalog *items.Catalog) (TileChange, error) {
	tile, err := parseTileRecord(data, catalog)
	if err != nil {
		return TileChange{}, fmt.Errorf("tile update at (%d,%d): %w", x, y, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index(x, y)
	if !ok {
		return TileChange{}, fmt.Errorf("tile update at (%d,%d): outside %dx%d world", x, y, w.width, w.height)
	}
	w.tiles[i] = tile
	return TileChange{
		X: x, Y: y,
		Foreground: tile.Foreground,
		Background: tile.Background,
		Collision:  catalog.CollisionType(uint32(tile.Foreground)),
	}, nil
}

// ApplyTreeClear removes a harvested or broken tree: foreground to 0,
// extras to basic, collision to passable.
func (w *World) ApplyTreeClear(x, y int) (TileChange, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index(x, y)
	if !ok {
		return TileChange{}, fmt.Errorf("tree clear at (%d,%d): outside %dx%d world", x, y, w.width, w.height)
	}
	t := &w.tiles[i]
	t.ClearForeground()
	return TileChange{X: x, Y: y, Background: t.Background, Collision: items.CollisionNone}, nil
}

// AddDrop appends a new dropped item and advances the UID allocator.
// Returns the assigned UID.
func (w *World) AddDrop(id uint32, x, y float32, count, flags uint8) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUID++
	w.drops = append(w.drops, DroppedItem{ID: id, X: x, Y: y, Count: count, Flags: flags, UID: w.lastUID})
	return w.lastUID
}

// UpdateDropAt changes the stack count of the drop matched by item id and
// the ceiling of its tile position, the way the server addresses count
// updates. Returns false when no drop matches.
func (w *World) UpdateDropAt(id uint32, x, y float32, count uint8) bool {
	cx := math.Ceil(float64(x))
	cy := math.Ceil(float64(y))

	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.drops {
		d := &w.drops[i]
		if d.ID == id && math.Ceil(float64(d.X)) == cx && math.Ceil(float64(d.Y)) == cy {
			d.Count = count
			return true
		}
	}
	return false
}

// RemoveDropByUID removes and returns the drop with the given UID.
func (w *World) RemoveDropByUID(uid uint32) (DroppedItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.drops {
		if w.drops[i].UID == uid {
			d := w.drops[i]
			w.drops = append(w.drops[:i], w.drops[i+1:]...)
			return d, true
		}
	}
	return DroppedItem{}, false
}

// Drops returns a copy of the live drop list.
func (w *World) Drops() []DroppedItem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]DroppedItem, len(w.drops))
	copy(out, w.drops)
	return out
}

// LastDropUID returns the current value of the UID allocator.
func (w *World) LastDropUID() uint32 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastUID
}

// SyncDropUID advances the allocator to at least uid. Snapshot and
// new-drop packets carry the server's allocator state; it never moves
// backwards.
func (w *World) SyncDropUID(uid uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if uid > w.lastUID {
		w.lastUID = uid
	}
}

// EachForeground calls fn for every tile with its foreground id, row
// major. Used to derive the collision grid after a snapshot.
func (w *World) EachForeground(fn func(x, y int, foreground uint16)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i := range w.tiles {
		fn(i%int(w.width), i/int(w.width), w.tiles[i].Foreground)
	}
}
