package agent

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nrevox/growfleet/internal/events"
	"github.com/nrevox/growfleet/internal/items"
	"github.com/nrevox/growfleet/internal/protocol"
)

// State packet flag bits.
const (
	stateFlagWalking    = 0x01
	stateFlagFacingLeft = 0x10
	stateFlagStanding   = 0x20
)

// Walk advances the local position by one tile step and announces it.
// With autopilot set the caller has already positioned the agent (a path
// step) and only the announcement is emitted.
func (a *Agent) Walk(dx, dy int, autopilot bool) error {
	a.posMu.Lock()
	if !autopilot {
		a.posX += float32(dx * 32)
		a.posY += float32(dy * 32)
	}
	x, y := a.posX, a.posY
	a.posMu.Unlock()

	flags := uint32(stateFlagWalking | stateFlagStanding)
	if dx < 0 {
		flags |= stateFlagFacingLeft
	}

	pkt := &protocol.GamePacket{
		Type:    protocol.PacketState,
		NetID:   a.NetID(),
		Flags:   flags,
		VectorX: x,
		VectorY: y,
		IntX:    int32(dx),
		IntY:    int32(dy),
	}
	if err := a.sendPacket(pkt); err != nil {
		return err
	}
	a.bus.Emit(events.TypePosition, map[string]any{"x": x, "y": y})
	return nil
}

// Punch swings the fist at the tile offset (dx, dy) from the agent.
func (a *Agent) Punch(dx, dy int) error {
	if err := a.tileAction(dx, dy, items.ItemFist); err != nil {
		return err
	}
	a.sleepMs(a.delays.Get().Punch)
	return nil
}

// Wrench uses the wrench on the tile offset (dx, dy).
func (a *Agent) Wrench(dx, dy int) error {
	return a.tileAction(dx, dy, items.ItemWrench)
}

// Place puts item id onto the tile offset (dx, dy) from the agent.
func (a *Agent) Place(dx, dy int, id uint32) error {
	if err := a.tileAction(dx, dy, id); err != nil {
		return err
	}
	a.sleepMs(a.delays.Get().Place)
	return nil
}

func (a *Agent) tileAction(dx, dy int, id uint32) error {
	x, y := a.Position()
	tx := int(x)/32 + dx
	ty := int(y)/32 + dy

	flags := uint32(stateFlagWalking | stateFlagStanding)
	if dx < 0 {
		flags |= stateFlagFacingLeft
	}

	return a.sendPacket(&protocol.GamePacket{
		Type:    protocol.PacketTileChangeRequest,
		NetID:   a.NetID(),
		Flags:   flags,
		Value:   id,
		VectorX: x,
		VectorY: y,
		IntX:    int32(tx),
		IntY:    int32(ty),
	})
}

// alignY seats the agent's 30-unit bounding box on the block below the
// given tile row.
func alignY(tileY int) int {
	return ((tileY*32+30)/32+1)*32 - 30
}

// FindPath walks the agent to tile (tx, ty), pacing each step by the
// configured delay. Returns the number of steps taken, or an error when
// no path exists.
func (a *Agent) FindPath(tx, ty int, hasAccess bool) (int, error) {
	x, y := a.Position()
	fx := int(x) / 32
	fy := int(y) / 32

	a.bus.Emit(events.TypePathStarted, map[string]any{
		"from_x": fx, "from_y": fy, "to_x": tx, "to_y": ty,
	})

	path := a.grid.FindPath(fx, fy, tx, ty, hasAccess)
	if path == nil {
		a.bus.Emit(events.TypePathCompleted, map[string]any{"success": false, "steps": 0})
		return 0, fmt.Errorf("no path from (%d,%d) to (%d,%d)", fx, fy, tx, ty)
	}

	delay := a.delays.Get().FindPath
	prev := path[0]
	for _, step := range path[1:] {
		a.SetPosition(float32(step.X*32), float32(alignY(step.Y)))
		if err := a.Walk(step.X-prev.X, step.Y-prev.Y, true); err != nil {
			a.bus.Emit(events.TypePathCompleted, map[string]any{"success": false, "steps": len(path) - 1})
			return 0, err
		}
		prev = step
		a.sleepMs(delay)
	}

	a.bus.Emit(events.TypePathCompleted, map[string]any{"success": true, "steps": len(path) - 1})
	return len(path) - 1, nil
}

// Collect requests pickup of every drop within 5 tiles that the
// inventory can still absorb. Returns the number of requests sent.
func (a *Agent) Collect() int {
	x, y := a.Position()

	sent := 0
	for _, d := range a.world.Drops() {
		dx := float64(d.X-x) / 32
		dy := float64(d.Y-y) / 32
		if math.Hypot(dx, dy) > 5 {
			continue
		}
		// Gems bypass the inventory.
		if d.ID != uint32(items.ItemGems) && !a.inv.HasRoomFor(uint16(d.ID)) {
			continue
		}

		err := a.sendPacket(&protocol.GamePacket{
			Type:    protocol.PacketItemActivateObjectRequest,
			NetID:   a.NetID(),
			Value:   d.UID,
			VectorX: d.X,
			VectorY: d.Y,
		})
		if err != nil {
			a.bus.Error(err)
			return sent
		}
		sent++
	}
	return sent
}

// Chat sends a chat line.
func (a *Agent) Chat(text string) error {
	msg, err := protocol.EncodeTextMessage(protocol.MessageGenericText,
		"action|input\n|text|"+text)
	if err != nil {
		return err
	}
	return a.tr.Send(true, msg)
}

// Warp requests entry into the named world.
func (a *Agent) Warp(worldName string) error {
	return a.sendAction(
		[2]string{"action", "join_request"},
		[2]string{"name", worldName},
		[2]string{"invitedWorld", "0"},
	)
}

// LeaveWorld requests a return to the world-select screen.
func (a *Agent) LeaveWorld() error {
	return a.sendAction([2]string{"action", "quit_to_exit"})
}

// Respawn asks the server to respawn the agent at the world door.
func (a *Agent) Respawn() error {
	return a.sendAction([2]string{"action", "respawn"})
}

// Wear activates a clothing item.
func (a *Agent) Wear(id uint32) error {
	return a.sendPacket(&protocol.GamePacket{
		Type:  protocol.PacketItemActivateRequest,
		NetID: a.NetID(),
		Value: id,
	})
}

// Drop asks the server to drop count of the item in front of the agent.
func (a *Agent) Drop(id uint32, count uint8) error {
	return a.sendAction(
		[2]string{"action", "drop"},
		[2]string{"itemID", strconv.FormatUint(uint64(id), 10)},
		[2]string{"count", strconv.Itoa(int(count))},
	)
}

func (a *Agent) sleepMs(ms uint32) {
	if ms == 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
