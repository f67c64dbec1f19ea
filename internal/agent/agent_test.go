package agent

import (
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrevox/growfleet/internal/crypto"
	"github.com/nrevox/growfleet/internal/items"
	"github.com/nrevox/growfleet/internal/model"
	"github.com/nrevox/growfleet/internal/protocol"
	"github.com/nrevox/growfleet/internal/transport"
	"github.com/nrevox/growfleet/internal/world"
)

// fakeTransport records sends and replays scripted events.
type fakeTransport struct {
	mu          sync.Mutex
	sent        [][]byte
	events      []*transport.Event
	connected   bool
	disconnects []bool
}

func (f *fakeTransport) Connect(addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect(graceful bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, graceful)
	f.connected = false
	return nil
}

func (f *fakeTransport) Send(reliable bool, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Service(timeout time.Duration) (*transport.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) lastSent(t *testing.T) []byte {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "nothing was sent")
	return f.sent[len(f.sent)-1]
}

func testCatalog() *items.Catalog {
	c := items.NewCatalog()
	c.Replace([]items.Item{
		{ID: 4, Name: "Dirt", ActionType: 0, CollisionType: items.CollisionSolid},
		{ID: 14, Name: "Wall", ActionType: 18, CollisionType: items.CollisionNone},
		{ID: 50, Name: "Block", ActionType: 0, CollisionType: items.CollisionSolid},
		{ID: 112, Name: "Gems", ActionType: 0, CollisionType: items.CollisionNone},
	}, 1, 0)
	return c
}

func newTestAgent(t *testing.T) (*Agent, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	a, err := New(testCatalog(), Options{
		Credentials: model.Credentials{Method: model.LoginRefreshToken, Token: "tok"},
		Transport:   ft,
	})
	require.NoError(t, err)
	a.running.Store(true)
	a.sessionStart = time.Now()
	return a, ft
}

func encodePacket(t *testing.T, pkt *protocol.GamePacket) []byte {
	t.Helper()
	body, err := pkt.Marshal()
	require.NoError(t, err)
	msg, err := protocol.EncodeMessage(protocol.MessageGamePacket, body)
	require.NoError(t, err)
	return msg
}

func decodeSentPacket(t *testing.T, data []byte) *protocol.GamePacket {
	t.Helper()
	kind, body, err := protocol.DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MessageGamePacket, kind)
	pkt, err := protocol.UnmarshalGamePacket(body)
	require.NoError(t, err)
	return pkt
}

func decodeSentText(t *testing.T, data []byte) *protocol.TextBlob {
	t.Helper()
	kind, body, err := protocol.DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.MessageGenericText, kind)
	return protocol.ParseTextBlob(protocol.DecodeText(body))
}

func callFunction(t *testing.T, build func(*protocol.VariantList)) []byte {
	t.Helper()
	vl := protocol.NewVariantList()
	build(vl)
	pkt := (&protocol.GamePacket{Type: protocol.PacketCallFunction}).WithExtended(vl.Marshal())
	return encodePacket(t, pkt)
}

func TestServerHelloFirstEntryBlob(t *testing.T) {
	a, ft := newTestAgent(t)

	hello, err := protocol.EncodeMessage(protocol.MessageServerHello, nil)
	require.NoError(t, err)
	a.handleMessage(hello)

	blob := decodeSentText(t, ft.lastSent(t))
	assert.Equal(t, "216", blob.Get("protocol"))
	assert.Equal(t, "tok", blob.Get("ltoken"))
	assert.Equal(t, "0", blob.Get("platformID"))
	assert.False(t, blob.Has("UUIDToken"), "fresh entry carries the reduced set")
}

func TestServerHelloRedirectBlob(t *testing.T) {
	a, ft := newTestAgent(t)
	a.login.ApplyRedirect(model.Redirect{
		Address: "203.0.113.7", Port: 17095,
		Token: 99, UserID: 1234, DoorID: "door9", UUID: "uuid-tok", AAT: 2,
	})

	hello, err := protocol.EncodeMessage(protocol.MessageServerHello, nil)
	require.NoError(t, err)
	a.handleMessage(hello)

	blob := decodeSentText(t, ft.lastSent(t))
	assert.Equal(t, "uuid-tok", blob.Get("UUIDToken"))
	assert.Equal(t, "door9", blob.Get("doorID"))
	assert.Equal(t, "99", blob.Get("token"))
	assert.Equal(t, "1234", blob.Get("user"))
	assert.Equal(t, "2", blob.Get("aat"))
	fp := a.login.Fingerprint()
	assert.Equal(t, fp.RID, blob.Get("rid"))
	assert.Equal(t, fp.MAC, blob.Get("mac"))
}

func TestOnSuperMainRepliesEnterGame(t *testing.T) {
	a, ft := newTestAgent(t)

	a.handleMessage(callFunction(t, func(vl *protocol.VariantList) {
		vl.SetString(0, "OnSuperMainStartAcceptLogonHrdxs47254722215a")
	}))

	blob := decodeSentText(t, ft.lastSent(t))
	assert.Equal(t, "enter_game", blob.Get("action"))
}

func TestOnSendToServerArmsRedirect(t *testing.T) {
	a, ft := newTestAgent(t)

	a.handleMessage(callFunction(t, func(vl *protocol.VariantList) {
		vl.SetString(0, "OnSendToServer")
		vl.SetUint(1, 17095)
		vl.SetInt(2, 7)
		vl.SetInt(3, 1234)
		vl.SetString(4, "203.0.113.7|door9|uuid-tok")
		vl.SetInt(5, 2)
	}))

	hop, armed := a.login.Redirect()
	require.True(t, armed)
	assert.Equal(t, "203.0.113.7", hop.Address)
	assert.Equal(t, uint32(17095), hop.Port)
	assert.Equal(t, "door9", hop.DoorID)
	assert.Equal(t, "uuid-tok", hop.UUID)
	assert.Equal(t, StateRedirecting, a.State())
	require.Len(t, ft.disconnects, 1)
	assert.True(t, ft.disconnects[0], "redirect disconnect is graceful")
}

func TestLocalSpawnEntersGame(t *testing.T) {
	a, _ := newTestAgent(t)
	a.login.ApplyRedirect(model.Redirect{Address: "x"})

	a.handleMessage(callFunction(t, func(vl *protocol.VariantList) {
		vl.SetString(0, "OnSpawn")
		vl.SetString(1, "netID|42\nuserID|7\nname|`wTester``\ncountry|us\nposXY|96|128\ntype|local")
	}))

	assert.Equal(t, StateInGame, a.State())
	assert.Equal(t, uint32(42), a.NetID())
	x, y := a.Position()
	assert.Equal(t, float32(96), x)
	assert.Equal(t, float32(128), y)
	_, armed := a.login.Redirect()
	assert.False(t, armed, "spawn completes the hop")
}

func TestRemoteSpawnAndRemove(t *testing.T) {
	a, _ := newTestAgent(t)

	a.handleMessage(callFunction(t, func(vl *protocol.VariantList) {
		vl.SetString(0, "OnSpawn")
		vl.SetString(1, "netID|9\nuserID|2\nname|`wOther``\ncountry|se\nposXY|32|32")
	}))
	require.Len(t, a.Players(), 1)
	assert.Equal(t, StateIdle, a.State(), "remote spawn does not change state")

	a.handleMessage(callFunction(t, func(vl *protocol.VariantList) {
		vl.SetString(0, "OnRemove")
		vl.SetString(1, "netID|9")
	}))
	assert.Empty(t, a.Players())
}

func TestMapDataLoadsWorldAndGrid(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	a, _ := newTestAgent(t)

	tiles := make([]world.Tile, 6)
	tiles[4] = world.Tile{Foreground: 4} // (1,1) solid
	snap := &world.Snapshot{Name: "TEST", Width: 3, Height: 2, Tiles: tiles}
	data := snap.Marshal(a.catalog)

	pkt := (&protocol.GamePacket{Type: protocol.PacketSendMapData}).WithExtended(data)
	a.handleMessage(encodePacket(t, pkt))

	assert.Equal(t, "TEST", a.world.Name())
	w, h := a.grid.Size()
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, uint8(items.CollisionSolid), a.grid.CellAt(1, 1))
	assert.Equal(t, uint8(items.CollisionNone), a.grid.CellAt(0, 0))
}

func TestPickupCreditsInventory(t *testing.T) {
	a, _ := newTestAgent(t)
	a.setNetID(42, 1)
	a.inv.SetCapacity(16)

	a.world.SyncDropUID(6)
	uid := a.world.AddDrop(50, 64, 64, 3, 0)
	require.Equal(t, uint32(7), uid)

	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:  protocol.PacketItemChangeObject,
		NetID: 42,
		Value: 7,
	}))

	assert.Equal(t, uint8(3), a.inv.Count(50))
	assert.Empty(t, a.world.Drops())
}

func TestPickupGemsCreditsBalance(t *testing.T) {
	a, _ := newTestAgent(t)
	a.setNetID(42, 1)

	uid := a.world.AddDrop(112, 64, 64, 3, 0)
	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:  protocol.PacketItemChangeObject,
		NetID: 42,
		Value: uid,
	}))

	assert.Equal(t, int32(3), a.Gems())
	assert.Equal(t, uint8(0), a.inv.Count(112), "gems never enter the inventory")
}

func TestPickupByOtherPlayerDoesNotCredit(t *testing.T) {
	a, _ := newTestAgent(t)
	a.setNetID(42, 1)

	uid := a.world.AddDrop(50, 64, 64, 3, 0)
	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:  protocol.PacketItemChangeObject,
		NetID: 9,
		Value: uid,
	}))

	assert.Equal(t, uint8(0), a.inv.Count(50))
	assert.Empty(t, a.world.Drops(), "the drop is gone either way")
}

func TestNewDropAdvancesUID(t *testing.T) {
	a, _ := newTestAgent(t)

	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:          protocol.PacketItemChangeObject,
		NetID:         0xFFFF_FFFF,
		Value:         50,
		FloatVariable: 2,
		VectorX:       64,
		VectorY:       64,
	}))

	drops := a.world.Drops()
	require.Len(t, drops, 1)
	assert.Equal(t, uint32(50), drops[0].ID)
	assert.Equal(t, uint8(2), drops[0].Count)
	assert.Equal(t, uint32(1), a.world.LastDropUID())
}

func TestPingReplyShape(t *testing.T) {
	a, ft := newTestAgent(t)
	a.setNetID(42, 1)

	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:  protocol.PacketPingRequest,
		Value: 12345,
	}))

	reply := decodeSentPacket(t, ft.lastSent(t))
	assert.Equal(t, protocol.PacketPingReply, reply.Type)
	assert.Equal(t, crypto.HashString(strconv.Itoa(12345)), reply.TargetNetID)
	assert.Equal(t, float32(64), reply.VectorX, "zero build length defaults to 64")
	assert.Equal(t, float32(64), reply.VectorY, "zero punch length defaults to 64")
}

func TestPingReplyUsesCharacterState(t *testing.T) {
	a, ft := newTestAgent(t)

	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:    protocol.PacketSetCharacterState,
		VectorX: 3, // build length
		VectorY: 2, // punch length
	}))
	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:  protocol.PacketPingRequest,
		Value: 1,
	}))

	reply := decodeSentPacket(t, ft.lastSent(t))
	assert.Equal(t, float32(96), reply.VectorX)
	assert.Equal(t, float32(64), reply.VectorY)
}

func TestLogonFailStopsSession(t *testing.T) {
	a, _ := newTestAgent(t)

	msg, err := protocol.EncodeTextMessage(protocol.MessageGameMessage, "action|logon_fail")
	require.NoError(t, err)
	a.handleMessage(msg)

	assert.False(t, a.Running())
}

func TestBanMessageStopsSession(t *testing.T) {
	a, _ := newTestAgent(t)

	msg, err := protocol.EncodeTextMessage(protocol.MessageGameMessage,
		"`4Sorry, this account is currently banned for 730 days.")
	require.NoError(t, err)
	a.handleMessage(msg)

	assert.False(t, a.Running())
}

func TestUnknownPacketTypeIgnored(t *testing.T) {
	a, _ := newTestAgent(t)
	a.handleMessage(encodePacket(t, &protocol.GamePacket{Type: protocol.PacketGoneFishin}))
	assert.True(t, a.Running())
}

func loadTestWorld(t *testing.T, a *Agent, width, height int) {
	t.Helper()
	tiles := make([]world.Tile, width*height)
	snap := &world.Snapshot{Name: "W", Width: uint32(width), Height: uint32(height), Tiles: tiles}
	require.NoError(t, a.world.ApplySnapshot(snap.Marshal(a.catalog), a.catalog))
	a.rebuildGrid()
}

func TestOwnPlacementDebitsInventory(t *testing.T) {
	a, _ := newTestAgent(t)
	a.setNetID(42, 1)
	loadTestWorld(t, a, 4, 4)
	a.inv.SetCapacity(16)
	a.inv.Add(4, 5)

	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type:  protocol.PacketTileChangeRequest,
		NetID: 42,
		Value: 4,
		IntX:  2, IntY: 2,
	}))

	assert.Equal(t, uint8(4), a.inv.Count(4))
	assert.Equal(t, uint16(4), a.world.ForegroundAt(2, 2))
	assert.Equal(t, uint8(items.CollisionSolid), a.grid.CellAt(2, 2))
}

func TestPunchClearsTileAndGrid(t *testing.T) {
	a, _ := newTestAgent(t)
	a.setNetID(42, 1)
	loadTestWorld(t, a, 4, 4)

	// Another player places, then punches the same tile.
	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type: protocol.PacketTileChangeRequest, NetID: 9, Value: 4, IntX: 1, IntY: 1,
	}))
	require.Equal(t, uint8(items.CollisionSolid), a.grid.CellAt(1, 1))

	a.handleMessage(encodePacket(t, &protocol.GamePacket{
		Type: protocol.PacketTileChangeRequest, NetID: 9, Value: items.ItemFist, IntX: 1, IntY: 1,
	}))
	assert.Equal(t, uint16(0), a.world.ForegroundAt(1, 1))
	assert.Equal(t, uint8(items.CollisionNone), a.grid.CellAt(1, 1))
}

func TestFindPathPrimitiveAlignsY(t *testing.T) {
	a, ft := newTestAgent(t)
	a.setNetID(42, 1)
	loadTestWorld(t, a, 5, 3)
	a.delays.Set(model.Delays{}) // no pacing in tests
	a.SetPosition(0, alignYf(0))

	steps, err := a.FindPath(2, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, steps)

	x, y := a.Position()
	assert.Equal(t, float32(64), x)
	assert.Equal(t, float32(alignY(0)), y)
	assert.Equal(t, 2, ft.sentCount(), "one State packet per step")
}

func alignYf(tileY int) float32 { return float32(alignY(tileY)) }

func TestFindPathNoRoute(t *testing.T) {
	a, _ := newTestAgent(t)
	loadTestWorld(t, a, 2, 1)
	a.grid.UpdateSingleTile(1, 0, items.CollisionSolid)
	a.delays.Set(model.Delays{})

	_, err := a.FindPath(1, 0, false)
	assert.Error(t, err)
}

func TestCollectRequestsNearbyDrops(t *testing.T) {
	a, ft := newTestAgent(t)
	a.setNetID(42, 1)
	a.inv.SetCapacity(16)
	a.SetPosition(0, 0)

	near := a.world.AddDrop(50, 64, 0, 1, 0)  // 2 tiles away
	a.world.AddDrop(50, 320, 0, 1, 0)         // 10 tiles away
	gems := a.world.AddDrop(112, 32, 0, 5, 0) // gems always fit

	sent := a.Collect()
	assert.Equal(t, 2, sent)

	uids := map[uint32]bool{}
	for _, raw := range ft.sent {
		pkt := decodeSentPacket(t, raw)
		assert.Equal(t, protocol.PacketItemActivateObjectRequest, pkt.Type)
		uids[pkt.Value] = true
	}
	assert.True(t, uids[near])
	assert.True(t, uids[gems])
}

func TestCollectSkipsFullInventory(t *testing.T) {
	a, _ := newTestAgent(t)
	a.setNetID(42, 1)
	a.inv.SetCapacity(1)
	a.inv.Add(9, 1) // occupies the only slot
	a.SetPosition(0, 0)

	a.world.AddDrop(50, 32, 0, 1, 0)
	assert.Equal(t, 0, a.Collect())
}

func TestWalkAdvancesPosition(t *testing.T) {
	a, ft := newTestAgent(t)
	a.setNetID(42, 1)
	a.SetPosition(96, 96)

	require.NoError(t, a.Walk(-1, 0, false))

	x, y := a.Position()
	assert.Equal(t, float32(64), x)
	assert.Equal(t, float32(96), y)

	pkt := decodeSentPacket(t, ft.lastSent(t))
	assert.Equal(t, protocol.PacketState, pkt.Type)
	assert.NotZero(t, pkt.Flags&stateFlagFacingLeft, "moving left faces left")
	assert.Equal(t, float32(64), pkt.VectorX)
}

func TestWorkerStartStop(t *testing.T) {
	a, ft := newTestAgent(t)
	a.running.Store(false)
	// Arm a redirect so the worker skips the HTTP preamble.
	a.login.ApplyRedirect(model.Redirect{Address: "203.0.113.7", Port: 17095})
	a.behavior.Set(false, false)

	a.Start()
	require.Eventually(t, ft.Connected, time.Second, 5*time.Millisecond)

	a.Stop()
	assert.False(t, a.Running())
	assert.Equal(t, StateDisconnected, a.State())
	assert.False(t, ft.Connected(), "worker disconnects on exit")
}
