package world

// Tile is one cell of the world grid.
type Tile struct {
	Foreground uint16
	Background uint16
	Flag1      uint8
	Flag2      uint8
	Extra      TileExtra

	// Legacy per-tile drop list. Live servers keep drops in the
	// world-level list; this stays for old snapshots that still populate it.
	Dropped []DroppedItem
}

// Clear resets the tile to bare air.
func (t *Tile) Clear() {
	*t = Tile{}
}

// ClearForeground removes the foreground item and its typed extras.
func (t *Tile) ClearForeground() {
	t.Foreground = 0
	t.Extra = TileExtra{}
}

// DroppedItem is an item lying in the world. UID is world-local and
// strictly increasing; pickup and update packets address drops by it.
type DroppedItem struct {
	ID    uint32
	X     float32
	Y     float32
	Count uint8
	Flags uint8
	UID   uint32
}

// Player is a remote player mirrored from its spawn announcement.
type Player struct {
	NetID     uint32
	UserID    uint32
	Name      string
	Country   string
	X         float32
	Y         float32
	Invisible bool
	Moderator bool
}
