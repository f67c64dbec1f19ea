package agent

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nrevox/growfleet/internal/crypto"
	"github.com/nrevox/growfleet/internal/events"
	"github.com/nrevox/growfleet/internal/items"
	"github.com/nrevox/growfleet/internal/model"
	"github.com/nrevox/growfleet/internal/protocol"
	"github.com/nrevox/growfleet/internal/world"
)

// WorldDatFile receives the most recent raw snapshot, for debugging.
const WorldDatFile = "world.dat"

// fatalServerMessages stop the session for good: no reconnect.
var fatalServerMessages = []string{
	"currently banned",
	"has been suspended",
	"Advanced Account Protection",
	"temporarily suspended",
}

// handleMessage dispatches one inbound reliable payload.
func (a *Agent) handleMessage(data []byte) {
	kind, body, err := protocol.DecodeMessage(data)
	if err != nil {
		a.bus.Error(fmt.Errorf("malformed frame: %w", err))
		return
	}
	a.bus.Emit(events.TypePacketIn, map[string]any{"kind": kind.String(), "size": len(data)})

	switch kind {
	case protocol.MessageServerHello:
		if err := a.onServerHello(); err != nil {
			a.bus.Error(err)
			a.log.Error("hello reply failed", "error", err)
		}
	case protocol.MessageGenericText, protocol.MessageGameMessage:
		a.handleTextMessage(protocol.DecodeText(body))
	case protocol.MessageGamePacket:
		a.handleGamePacket(body)
	default:
		// Track, client-log and the rest carry nothing we act on.
	}
}

// handleTextMessage reacts to server text: login failures and bans stop
// the session, everything else is surfaced as a log event.
func (a *Agent) handleTextMessage(text string) {
	blob := protocol.ParseTextBlob(text)

	if blob.Get("action") == "logon_fail" {
		a.log.Warn("logon failed")
		a.bus.Log("error", "logon_fail")
		a.running.Store(false)
		return
	}
	for _, fatal := range fatalServerMessages {
		if strings.Contains(text, fatal) {
			a.log.Warn("fatal server message", "match", fatal)
			a.bus.Log("error", text)
			a.running.Store(false)
			return
		}
	}
	a.bus.Log("info", text)
}

// handleGamePacket dispatches by inner packet type. Unknown types are
// ignored; parse failures drop the packet but keep the session alive.
func (a *Agent) handleGamePacket(body []byte) {
	pkt, err := protocol.UnmarshalGamePacket(body)
	if err != nil {
		a.bus.Error(fmt.Errorf("malformed game packet: %w", err))
		return
	}

	switch pkt.Type {
	case protocol.PacketCallFunction:
		a.handleCallFunction(pkt)

	case protocol.PacketSendMapData:
		a.handleMapData(pkt.Extended)

	case protocol.PacketSendInventoryState:
		if err := a.inv.Parse(pkt.Extended); err != nil {
			a.bus.Error(fmt.Errorf("inventory state: %w", err))
			return
		}
		a.bus.Emit(events.TypeInventoryFull, map[string]any{"slots": a.inv.Len()})

	case protocol.PacketSendItemDatabaseData:
		a.handleItemDatabase(pkt.Extended)

	case protocol.PacketTileChangeRequest:
		a.handleTileChange(pkt)

	case protocol.PacketSendTileUpdateData:
		change, err := a.world.ApplyTileUpdate(int(pkt.IntX), int(pkt.IntY), pkt.Extended, a.catalog)
		if err != nil {
			a.bus.Error(err)
			return
		}
		a.applyChange(change)

	case protocol.PacketSendTileUpdateDataMultiple:
		changes, err := a.world.ApplyTileUpdates(pkt.Extended, a.catalog)
		for _, change := range changes {
			a.applyChange(change)
		}
		if err != nil {
			a.bus.Error(err)
		}

	case protocol.PacketSendTileTreeState:
		change, err := a.world.ApplyTreeClear(int(pkt.IntX), int(pkt.IntY))
		if err != nil {
			a.bus.Error(err)
			return
		}
		a.applyChange(change)

	case protocol.PacketItemChangeObject:
		a.handleItemChangeObject(pkt)

	case protocol.PacketModifyItemInventory:
		if !a.inv.Remove(uint16(pkt.Value), pkt.Unk2) {
			a.inv.Remove(uint16(pkt.Value), a.inv.Count(uint16(pkt.Value)))
		}
		a.bus.Emit(events.TypeInventory, map[string]any{"id": pkt.Value, "count": a.inv.Count(uint16(pkt.Value))})

	case protocol.PacketPingRequest:
		if err := a.sendPingReply(pkt.Value); err != nil {
			a.bus.Error(err)
		}

	case protocol.PacketSetCharacterState:
		a.charMu.Lock()
		a.char.buildLength = pkt.VectorX
		a.char.punchLength = pkt.VectorY
		a.char.gravity = pkt.FloatVariable
		a.char.velocityX = pkt.VectorX2
		a.char.velocityY = pkt.VectorY2
		a.char.hackType = int32(pkt.Value)
		a.charMu.Unlock()

	case protocol.PacketState:
		a.handleRemoteState(pkt)

	default:
		// Unknown inner types are ignored.
	}
}

func (a *Agent) handleMapData(data []byte) {
	if err := a.world.ApplySnapshot(data, a.catalog); err != nil {
		a.bus.Error(fmt.Errorf("world snapshot: %w", err))
		return
	}
	// Observational only; the session does not depend on the file.
	if err := os.WriteFile(WorldDatFile, data, 0o644); err != nil {
		a.log.Warn("writing world.dat", "error", err)
	}

	a.rebuildGrid()
	w, h := a.world.Size()
	a.bus.Emit(events.TypeWorldLoaded, map[string]any{
		"name":   a.world.Name(),
		"width":  w,
		"height": h,
	})
}

func (a *Agent) handleItemDatabase(compressed []byte) {
	if a.loader == nil {
		a.log.Warn("item database received with no loader configured")
		return
	}
	n, err := a.catalog.IngestPacket(compressed, a.loader)
	if err != nil {
		a.bus.Error(fmt.Errorf("item database: %w", err))
		return
	}
	a.log.Info("item catalog ingested", "items", n, "version", a.catalog.Version())
}

// handleTileChange applies a punch or place delta. A placement by the
// local player additionally debits the placed item from inventory.
func (a *Agent) handleTileChange(pkt *protocol.GamePacket) {
	x, y := int(pkt.IntX), int(pkt.IntY)

	var (
		change world.TileChange
		err    error
	)
	if pkt.Value == uint32(items.ItemFist) {
		change, err = a.world.ApplyPunch(x, y)
	} else {
		item, ok := a.catalog.Get(pkt.Value)
		if !ok {
			item = items.Item{ID: pkt.Value}
		}
		change, err = a.world.ApplyPlace(x, y, item)
		if pkt.NetID == a.NetID() {
			a.inv.Remove(uint16(pkt.Value), 1)
		}
	}
	if err != nil {
		a.bus.Error(err)
		return
	}
	a.applyChange(change)
}

// handleItemChangeObject covers the three drop cases keyed by net id.
func (a *Agent) handleItemChangeObject(pkt *protocol.GamePacket) {
	const (
		netIDNewDrop    = 0xFFFF_FFFF
		netIDUpdateDrop = 0xFFFF_FFFF - 3
	)

	switch pkt.NetID {
	case netIDNewDrop:
		uid := a.world.AddDrop(pkt.Value, pkt.VectorX, pkt.VectorY, uint8(pkt.FloatVariable), 0)
		a.bus.Emit(events.TypeItemDropped, map[string]any{"id": pkt.Value, "uid": uid})

	case netIDUpdateDrop:
		a.world.UpdateDropAt(pkt.Value, pkt.VectorX, pkt.VectorY, uint8(pkt.FloatVariable))

	default:
		drop, ok := a.world.RemoveDropByUID(pkt.Value)
		if !ok {
			return
		}
		if pkt.NetID == a.NetID() {
			if drop.ID == uint32(items.ItemGems) {
				total := a.gems.Add(int32(drop.Count))
				a.bus.Emit(events.TypeGems, map[string]any{"total": total})
			} else {
				a.inv.AddClamped(uint16(drop.ID), drop.Count)
				a.bus.Emit(events.TypeInventory, map[string]any{"id": drop.ID, "count": a.inv.Count(uint16(drop.ID))})
			}
		}
		a.bus.Emit(events.TypeItemCollected, map[string]any{"id": drop.ID, "uid": drop.UID, "by": pkt.NetID})
	}
}

// handleRemoteState tracks other players' movement.
func (a *Agent) handleRemoteState(pkt *protocol.GamePacket) {
	if pkt.NetID == a.NetID() {
		return
	}
	a.playersMu.Lock()
	p, ok := a.players[pkt.NetID]
	if ok {
		p.X = pkt.VectorX
		p.Y = pkt.VectorY
	}
	a.playersMu.Unlock()
	if ok {
		a.bus.Emit(events.TypePlayerMoved, map[string]any{"net_id": pkt.NetID, "x": pkt.VectorX, "y": pkt.VectorY})
	}
}

// applyChange pushes a tile mutation into the collision grid and the
// event stream.
func (a *Agent) applyChange(c world.TileChange) {
	a.grid.UpdateSingleTile(c.X, c.Y, c.Collision)
	a.bus.Emit(events.TypeTileChanged, map[string]any{
		"x": c.X, "y": c.Y, "fg": c.Foreground, "bg": c.Background,
	})
}

// handleCallFunction reacts to the server RPCs the client cares about.
func (a *Agent) handleCallFunction(pkt *protocol.GamePacket) {
	vl, err := protocol.UnmarshalVariantList(pkt.Extended)
	if err != nil {
		a.bus.Error(fmt.Errorf("variant list: %w", err))
		return
	}

	fn := vl.Function()
	switch {
	case strings.HasPrefix(fn, "OnSuperMainStartAcceptLogon"):
		if err := a.sendAction([2]string{"action", "enter_game"}); err != nil {
			a.bus.Error(err)
		}

	case fn == "OnSendToServer":
		a.handleSendToServer(vl)

	case fn == "OnSpawn":
		a.handleSpawn(vl.String(1))

	case fn == "OnRemove":
		netID, err := world.ParseRemoveBlob(vl.String(1))
		if err != nil {
			a.bus.Error(err)
			return
		}
		a.playersMu.Lock()
		delete(a.players, netID)
		a.playersMu.Unlock()
		a.bus.Emit(events.TypePlayerLeft, map[string]any{"net_id": netID})

	case fn == "OnSetPos":
		x, y := vl.Vec2(1)
		a.SetPosition(x, y)

	case fn == "OnTalkBubble":
		a.bus.Emit(events.TypeLog, map[string]any{
			"level":   "chat",
			"net_id":  vl.Uint(1),
			"message": vl.String(2),
		})

	case fn == "OnConsoleMessage":
		a.bus.Log("info", vl.String(1))
	}
}

// handleSendToServer arms the redirect and starts the graceful hop.
func (a *Agent) handleSendToServer(vl *protocol.VariantList) {
	hopInfo := strings.SplitN(vl.String(4), "|", 3)
	hop := model.Redirect{
		Port:   vl.Uint(1),
		Token:  vl.Int(2),
		UserID: vl.Int(3),
		AAT:    vl.Int(5),
	}
	hop.Address = hopInfo[0]
	if len(hopInfo) > 1 {
		hop.DoorID = hopInfo[1]
	}
	if len(hopInfo) > 2 {
		hop.UUID = hopInfo[2]
	}

	a.login.ApplyRedirect(hop)
	a.setState(StateRedirecting)
	a.log.Info("redirecting", "address", hop.Address, "port", hop.Port)
	if err := a.tr.Disconnect(true); err != nil {
		a.bus.Error(err)
	}
}

// handleSpawn registers a spawn announcement; the local one pins the
// agent's net id and position and completes the login.
func (a *Agent) handleSpawn(blob string) {
	p, local, err := world.ParseSpawnBlob(blob)
	if err != nil {
		a.bus.Error(fmt.Errorf("spawn blob: %w", err))
		return
	}

	if local {
		a.setNetID(p.NetID, p.UserID)
		a.SetPosition(p.X, p.Y)
		a.setState(StateInGame)
		a.login.ClearRedirect()
		a.log.Info("spawned", "net_id", p.NetID, "world", a.world.Name())
		return
	}

	a.playersMu.Lock()
	a.players[p.NetID] = p
	a.playersMu.Unlock()
	a.bus.Emit(events.TypePlayerJoined, map[string]any{"net_id": p.NetID, "name": p.Name})
}

// sendPingReply answers a ping probe. The target net id carries the
// accumulator hash of the probe value's decimal rendering; the vector
// fields carry the scaled build and punch lengths, defaulting to 64.
func (a *Agent) sendPingReply(value uint32) error {
	a.charMu.Lock()
	cs := a.char
	a.charMu.Unlock()

	build := cs.buildLength * 32
	if build == 0 {
		build = 64
	}
	punch := cs.punchLength * 32
	if punch == 0 {
		punch = 64
	}

	pkt := &protocol.GamePacket{
		Type:        protocol.PacketPingReply,
		NetID:       a.NetID(),
		TargetNetID: crypto.HashString(strconv.FormatUint(uint64(value), 10)),
		Value:       uint32(time.Since(a.sessionStart).Milliseconds()),
		VectorX:     build,
		VectorY:     punch,
	}
	if a.world.Loaded() {
		pkt.FloatVariable = cs.gravity
		pkt.VectorX2 = cs.velocityX
		pkt.VectorY2 = cs.velocityY
		pkt.IntX = cs.hackType
	}
	return a.sendPacket(pkt)
}

// sendPacket frames and sends one outbound game packet.
func (a *Agent) sendPacket(pkt *protocol.GamePacket) error {
	body, err := pkt.Marshal()
	if err != nil {
		return err
	}
	msg, err := protocol.EncodeMessage(protocol.MessageGamePacket, body)
	if err != nil {
		return err
	}
	if err := a.tr.Send(true, msg); err != nil {
		return err
	}
	a.bus.Emit(events.TypePacketOut, map[string]any{"type": pkt.Type.String()})
	return nil
}
