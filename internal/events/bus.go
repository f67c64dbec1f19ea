// Package events carries the per-agent observation stream: typed events
// pushed to at most one subscriber, never blocking the session worker.
package events

import (
	"sync"
	"time"
)

// Type enumerates the event variants.
type Type string

const (
	TypeWorldLoaded   Type = "world_loaded"
	TypeTileChanged   Type = "tile_changed"
	TypeItemDropped   Type = "item_dropped"
	TypeItemCollected Type = "item_collected"
	TypeInventory     Type = "inventory_changed"
	TypeInventoryFull Type = "inventory_parsed"
	TypeGems          Type = "gems_changed"
	TypePosition      Type = "position_changed"
	TypePathStarted   Type = "path_started"
	TypePathCompleted Type = "path_completed"
	TypePlayerJoined  Type = "player_joined"
	TypePlayerLeft    Type = "player_left"
	TypePlayerMoved   Type = "player_moved"
	TypeConnected     Type = "connected"
	TypeDisconnected  Type = "disconnected"
	TypePacketIn      Type = "packet_in"
	TypePacketOut     Type = "packet_out"
	TypeLog           Type = "log"
	TypeError         Type = "error"
	TypeConfig        Type = "config_changed"
)

// Event is one entry of the stream. Fields carries the variant payload
// with small scalar values, keeping the event JSON-encodable for the
// control surface.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp int64          `json:"ts"` // milliseconds, Unix epoch
	Fields    map[string]any `json:"fields,omitempty"`
}

// Bus fans one agent's events out to at most one subscriber. Emission is
// non-blocking: with no subscriber, or a full subscriber buffer, the
// event is dropped.
type Bus struct {
	mu  sync.Mutex
	sub chan Event

	now func() time.Time
}

// NewBus creates a bus with no subscriber.
func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe installs the subscriber channel, replacing any previous one,
// and returns it. The buffer absorbs bursts; a stalled reader loses
// events rather than stalling the session.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	if b.sub != nil {
		close(b.sub)
	}
	b.sub = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe detaches and closes the current subscriber, if any.
func (b *Bus) Unsubscribe() {
	b.mu.Lock()
	if b.sub != nil {
		close(b.sub)
		b.sub = nil
	}
	b.mu.Unlock()
}

// Emit publishes one event, stamping it with the current time.
func (b *Bus) Emit(t Type, fields map[string]any) {
	ev := Event{
		Type:      t,
		Timestamp: b.now().UnixMilli(),
		Fields:    fields,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return
	}
	select {
	case b.sub <- ev:
	default:
	}
}

// Log emits a log event.
func (b *Bus) Log(level, message string) {
	b.Emit(TypeLog, map[string]any{"level": level, "message": message})
}

// Error emits an error event.
func (b *Bus) Error(err error) {
	b.Emit(TypeError, map[string]any{"error": err.Error()})
}
