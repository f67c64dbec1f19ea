// Package agent drives one authenticated session: login preamble,
// handshake, world mirroring, and the behavior primitives.
package agent

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nrevox/growfleet/internal/auth"
	"github.com/nrevox/growfleet/internal/events"
	"github.com/nrevox/growfleet/internal/items"
	"github.com/nrevox/growfleet/internal/model"
	"github.com/nrevox/growfleet/internal/pathfind"
	"github.com/nrevox/growfleet/internal/socks5"
	"github.com/nrevox/growfleet/internal/transport"
	"github.com/nrevox/growfleet/internal/world"
)

// Transport is the reliable-datagram layer the agent drives. Satisfied
// by *transport.Conn; tests substitute a synchronous fake.
type Transport interface {
	Connect(addr string) error
	Disconnect(graceful bool) error
	Send(reliable bool, data []byte) error
	Service(timeout time.Duration) (*transport.Event, error)
	Connected() bool
}

// characterState mirrors the server-pushed movement modifiers echoed in
// ping replies.
type characterState struct {
	buildLength float32
	punchLength float32
	gravity     float32
	velocityX   float32
	velocityY   float32
	hackType    int32
}

// Agent is one session. Created by the fleet manager, driven by its
// worker goroutine; exported methods are safe from any goroutine.
type Agent struct {
	log     *slog.Logger
	tr      Transport
	catalog *items.Catalog
	loader  items.Loader
	authc   *auth.Client
	fetcher auth.TokenFetcher

	world *world.World
	grid  *pathfind.Grid
	inv   *model.Inventory
	gems  model.Gems

	behavior *model.BehaviorConfig
	delays   *model.DelayConfig
	login    *model.LoginParams
	bus      *events.Bus

	running atomic.Bool

	stateMu sync.Mutex
	state   State
	netID   uint32
	userID  uint32

	posMu sync.Mutex
	posX  float32
	posY  float32

	playersMu sync.Mutex
	players   map[uint32]*world.Player

	charMu sync.Mutex
	char   characterState

	sessionStart time.Time

	wg sync.WaitGroup
}

// Options configures an agent at creation time.
type Options struct {
	Credentials model.Credentials
	SOCKS5      *socks5.Config
	Loader      items.Loader
	Fetcher     auth.TokenFetcher
	Auth        *auth.Client
	Logger      *slog.Logger
	// Transport overrides the real connection; used by tests.
	Transport Transport
}

// New builds an agent around a shared item catalog.
func New(catalog *items.Catalog, opts Options) (*Agent, error) {
	login, err := model.NewLoginParams(opts.Credentials)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	authc := opts.Auth
	if authc == nil {
		authc = auth.NewClient(auth.WithLogger(log))
	}

	tr := opts.Transport
	if tr == nil {
		var tropts []transport.Option
		tropts = append(tropts, transport.WithLogger(log))
		if opts.SOCKS5 != nil && opts.SOCKS5.Enabled() {
			tropts = append(tropts, transport.WithSOCKS5(*opts.SOCKS5))
		}
		tr = transport.New(tropts...)
	}

	return &Agent{
		log:      log,
		tr:       tr,
		catalog:  catalog,
		loader:   opts.Loader,
		authc:    authc,
		fetcher:  opts.Fetcher,
		world:    world.NewWorld(),
		grid:     pathfind.New(),
		inv:      model.NewInventory(),
		behavior: model.NewBehaviorConfig(),
		delays:   model.NewDelayConfig(),
		login:    login,
		bus:      events.NewBus(),
		players:  make(map[uint32]*world.Player),
	}, nil
}

// Bus exposes the event stream for subscribers.
func (a *Agent) Bus() *events.Bus { return a.bus }

// Behavior exposes the automation toggles.
func (a *Agent) Behavior() *model.BehaviorConfig { return a.behavior }

// Delays exposes the pacing knobs.
func (a *Agent) Delays() *model.DelayConfig { return a.delays }

// Inventory exposes the mirrored inventory.
func (a *Agent) Inventory() *model.Inventory { return a.inv }

// World exposes the mirrored world.
func (a *Agent) World() *world.World { return a.world }

// Gems returns the current gem balance.
func (a *Agent) Gems() int32 { return a.gems.Load() }

// Login exposes the login parameters.
func (a *Agent) Login() *model.LoginParams { return a.login }

// State returns the session lifecycle position.
func (a *Agent) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// NetID returns the server-assigned network id, 0 before spawn.
func (a *Agent) NetID() uint32 {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.netID
}

func (a *Agent) setNetID(netID, userID uint32) {
	a.stateMu.Lock()
	a.netID = netID
	a.userID = userID
	a.stateMu.Unlock()
}

// Position returns the local position in world units (1/32 tile).
func (a *Agent) Position() (float32, float32) {
	a.posMu.Lock()
	defer a.posMu.Unlock()
	return a.posX, a.posY
}

// SetPosition overwrites the local position.
func (a *Agent) SetPosition(x, y float32) {
	a.posMu.Lock()
	a.posX = x
	a.posY = y
	a.posMu.Unlock()
	a.bus.Emit(events.TypePosition, map[string]any{"x": x, "y": y})
}

// Running reports whether the worker should keep going.
func (a *Agent) Running() bool { return a.running.Load() }

// Players returns a snapshot of the remote players in the world.
func (a *Agent) Players() []world.Player {
	a.playersMu.Lock()
	defer a.playersMu.Unlock()
	out := make([]world.Player, 0, len(a.players))
	for _, p := range a.players {
		out = append(out, *p)
	}
	return out
}

// Snapshot is the fleet-listing view of one agent.
type Snapshot struct {
	State    string  `json:"state"`
	Method   string  `json:"method"`
	NetID    uint32  `json:"net_id"`
	World    string  `json:"world"`
	Gems     int32   `json:"gems"`
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	Players  int     `json:"players"`
	Slots    int     `json:"slots"`
	Running  bool    `json:"running"`
	GrowID   string  `json:"grow_id,omitempty"`
	Redirect bool    `json:"redirecting"`
}

// Describe builds the listing snapshot.
func (a *Agent) Describe() Snapshot {
	creds := a.login.Credentials()
	_, redirecting := a.login.Redirect()
	x, y := a.Position()

	var method string
	switch creds.Method {
	case model.LoginLegacy:
		method = "legacy"
	case model.LoginTokenFetcher:
		method = "fetcher"
	default:
		method = "refresh"
	}

	a.playersMu.Lock()
	playerCount := len(a.players)
	a.playersMu.Unlock()

	return Snapshot{
		State:    a.State().String(),
		Method:   method,
		NetID:    a.NetID(),
		World:    a.world.Name(),
		Gems:     a.gems.Load(),
		X:        x,
		Y:        y,
		Players:  playerCount,
		Slots:    a.inv.Len(),
		Running:  a.running.Load(),
		GrowID:   creds.GrowID,
		Redirect: redirecting,
	}
}

// leaveWorld clears everything scoped to the current world.
func (a *Agent) leaveWorld() {
	a.world.Reset()
	a.grid.Clear()
	a.playersMu.Lock()
	a.players = make(map[uint32]*world.Player)
	a.playersMu.Unlock()
	a.setNetID(0, 0)
	a.SetPosition(0, 0)
}

// rebuildGrid derives the collision grid from the current world and the
// shared catalog, clearing the path cache.
func (a *Agent) rebuildGrid() {
	w, h := a.world.Size()
	cells := make([]uint8, int(w)*int(h))
	a.world.EachForeground(func(x, y int, fg uint16) {
		cells[y*int(w)+x] = a.catalog.CollisionType(uint32(fg))
	})
	a.grid.Rebuild(int(w), int(h), cells)
}
