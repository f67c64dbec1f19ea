package world

import (
	"fmt"

	"github.com/nrevox/growfleet/internal/items"
	"github.com/nrevox/growfleet/internal/protocol"
)

// Snapshot layout limits. A malicious length field must not allocate the
// moon before validation catches it.
const (
	maxWorldDim   = 10_000
	maxWorldTiles = 16_000_000
	maxWorldDrops = 1_000_000
)

const snapshotSkipBytes = 6

type snapshot struct {
	name           string
	width          uint32
	height         uint32
	tiles          []Tile
	drops          []DroppedItem
	lastUID        uint32
	baseWeather    uint16
	currentWeather uint16
}

// ApplySnapshot parses a SendMapData payload and atomically replaces the
// world contents. On any parse error the previous state is kept.
func (w *World) ApplySnapshot(data []byte, catalog *items.Catalog) error {
	s, err := parseSnapshot(data, catalog)
	if err != nil {
		return err
	}
	w.replace(s)
	return nil
}

func parseSnapshot(data []byte, catalog *items.Catalog) (*snapshot, error) {
	r := protocol.NewReader(data)
	if err := r.Skip(snapshotSkipBytes); err != nil {
		return nil, fmt.Errorf("snapshot preamble: %w", err)
	}

	s := &snapshot{}
	var err error
	if s.name, err = r.ReadString16(); err != nil {
		return nil, fmt.Errorf("snapshot name: %w", err)
	}
	if s.width, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("snapshot width: %w", err)
	}
	if s.height, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("snapshot height: %w", err)
	}

	tileCount, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("snapshot tile count: %w", err)
	}
	if s.width == 0 || s.height == 0 || s.width > maxWorldDim || s.height > maxWorldDim {
		return nil, fmt.Errorf("snapshot dimensions %dx%d out of range", s.width, s.height)
	}
	if tileCount != s.width*s.height || tileCount > maxWorldTiles {
		return nil, fmt.Errorf("snapshot tile count %d does not match %dx%d", tileCount, s.width, s.height)
	}

	s.tiles = make([]Tile, tileCount)
	for i := range s.tiles {
		if s.tiles[i], err = readTileRecord(r, catalog); err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}
	}

	dropCount, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("snapshot drop count: %w", err)
	}
	if s.lastUID, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("snapshot drop uid: %w", err)
	}
	if dropCount > maxWorldDrops {
		return nil, fmt.Errorf("snapshot drop count %d out of range", dropCount)
	}

	s.drops = make([]DroppedItem, dropCount)
	for i := range s.drops {
		d := &s.drops[i]
		if d.ID, err = r.ReadUint32(); err != nil {
			return nil, fmt.Errorf("drop %d id: %w", i, err)
		}
		if d.X, err = r.ReadFloat32(); err != nil {
			return nil, fmt.Errorf("drop %d x: %w", i, err)
		}
		if d.Y, err = r.ReadFloat32(); err != nil {
			return nil, fmt.Errorf("drop %d y: %w", i, err)
		}
		var b byte
		if b, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("drop %d count: %w", i, err)
		}
		d.Count = b
		if b, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("drop %d flags: %w", i, err)
		}
		d.Flags = b
		if d.UID, err = r.ReadUint32(); err != nil {
			return nil, fmt.Errorf("drop %d uid: %w", i, err)
		}
	}

	if s.baseWeather, err = r.ReadUint16(); err != nil {
		return nil, fmt.Errorf("snapshot base weather: %w", err)
	}
	if _, err = r.ReadUint16(); err != nil {
		return nil, fmt.Errorf("snapshot weather padding: %w", err)
	}
	if s.currentWeather, err = r.ReadUint16(); err != nil {
		return nil, fmt.Errorf("snapshot current weather: %w", err)
	}
	return s, nil
}

func readTileRecord(r *protocol.Reader, catalog *items.Catalog) (Tile, error) {
	var t Tile
	var err error
	if t.Foreground, err = r.ReadUint16(); err != nil {
		return t, fmt.Errorf("foreground: %w", err)
	}
	if t.Background, err = r.ReadUint16(); err != nil {
		return t, fmt.Errorf("background: %w", err)
	}
	if err = r.Skip(2); err != nil {
		return t, fmt.Errorf("reserved: %w", err)
	}
	if t.Flag1, err = r.ReadByte(); err != nil {
		return t, fmt.Errorf("flag1: %w", err)
	}
	if t.Flag2, err = r.ReadByte(); err != nil {
		return t, fmt.Errorf("flag2: %w", err)
	}

	action := catalog.ActionType(uint32(t.Foreground))
	if t.Extra, err = ParseExtra(r, action); err != nil {
		return t, fmt.Errorf("extras: %w", err)
	}
	return t, nil
}

// parseTileRecord parses a standalone tile record (SendTileUpdateData).
func parseTileRecord(data []byte, catalog *items.Catalog) (Tile, error) {
	return readTileRecord(protocol.NewReader(data), catalog)
}

// ApplyTileUpdates parses a SendTileUpdateDataMultiple payload: repeated
// {u32 x, u32 y, tile record} until the data is exhausted. Changes are
// applied as they parse; an error reports how far the payload got.
func (w *World) ApplyTileUpdates(data []byte, catalog *items.Catalog) ([]TileChange, error) {
	r := protocol.NewReader(data)
	var changes []TileChange

	for r.Remaining() > 0 {
		x, err := r.ReadUint32()
		if err != nil {
			return changes, fmt.Errorf("tile update %d x: %w", len(changes), err)
		}
		y, err := r.ReadUint32()
		if err != nil {
			return changes, fmt.Errorf("tile update %d y: %w", len(changes), err)
		}
		tile, err := readTileRecord(r, catalog)
		if err != nil {
			return changes, fmt.Errorf("tile update %d at (%d,%d): %w", len(changes), x, y, err)
		}

		w.mu.Lock()
		i, ok := w.index(int(x), int(y))
		if ok {
			w.tiles[i] = tile
		}
		w.mu.Unlock()
		if !ok {
			return changes, fmt.Errorf("tile update %d at (%d,%d): outside world", len(changes), x, y)
		}

		changes = append(changes, TileChange{
			X: int(x), Y: int(y),
			Foreground: tile.Foreground,
			Background: tile.Background,
			Collision:  catalog.CollisionType(uint32(tile.Foreground)),
		})
	}
	return changes, nil
}

// Snapshot is the builder-side mirror of the wire snapshot, used by the
// world.dat debug tooling and by tests constructing server payloads.
type Snapshot struct {
	Name           string
	Width          uint32
	Height         uint32
	Tiles          []Tile
	Drops          []DroppedItem
	LastDropUID    uint32
	BaseWeather    uint16
	CurrentWeather uint16
}

// Marshal renders the snapshot in the SendMapData wire layout. Each
// tile's Extra.Kind must agree with its foreground's catalog action type,
// or the rendered bytes will not parse back.
func (s *Snapshot) Marshal(catalog *items.Catalog) []byte {
	w := protocol.NewWriter(64 + len(s.Tiles)*8)
	w.WriteBytes(make([]byte, snapshotSkipBytes))
	w.WriteString16(s.Name)
	w.WriteUint32(s.Width)
	w.WriteUint32(s.Height)
	w.WriteUint32(uint32(len(s.Tiles)))

	for i := range s.Tiles {
		t := &s.Tiles[i]
		w.WriteUint16(t.Foreground)
		w.WriteUint16(t.Background)
		w.WriteUint16(0)
		w.WriteByte(t.Flag1)
		w.WriteByte(t.Flag2)
		MarshalExtra(w, &t.Extra)
	}

	w.WriteUint32(uint32(len(s.Drops)))
	w.WriteUint32(s.LastDropUID)
	for _, d := range s.Drops {
		w.WriteUint32(d.ID)
		w.WriteFloat32(d.X)
		w.WriteFloat32(d.Y)
		w.WriteByte(d.Count)
		w.WriteByte(d.Flags)
		w.WriteUint32(d.UID)
	}

	w.WriteUint16(s.BaseWeather)
	w.WriteUint16(0)
	w.WriteUint16(s.CurrentWeather)
	return w.Bytes()
}
