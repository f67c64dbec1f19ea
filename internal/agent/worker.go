package agent

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/nrevox/growfleet/internal/auth"
	"github.com/nrevox/growfleet/internal/constants"
	"github.com/nrevox/growfleet/internal/events"
	"github.com/nrevox/growfleet/internal/transport"
)

// serviceTimeout bounds one transport poll, which bounds how long a stop
// request can go unnoticed.
const serviceTimeout = constants.ServiceTimeoutMs * time.Millisecond

// Start launches the worker goroutine. Idempotent while running.
func (a *Agent) Start() {
	if !a.running.CompareAndSwap(false, true) {
		return
	}
	a.sessionStart = time.Now()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run()
	}()
}

// Stop requests shutdown and joins the worker. The worker drains its
// current poll, disconnects gracefully, and exits.
func (a *Agent) Stop() {
	a.running.Store(false)
	a.wg.Wait()
}

// run is the session lifecycle: preamble (or redirect hop), connect,
// service until disconnect, then apply the reconnect policy.
func (a *Agent) run() {
	ctx := context.Background()

	for a.running.Load() {
		addr, err := a.nextAddress(ctx)
		if err != nil {
			if !a.shouldReconnect() {
				break
			}
			continue
		}

		a.setState(StateConnecting)
		if err := a.tr.Connect(addr); err != nil {
			a.bus.Error(err)
			a.log.Error("connect failed", "addr", addr, "error", err)
			if !a.shouldReconnect() {
				break
			}
			continue
		}

		a.serviceLoop()

		a.leaveWorld()
		a.setState(StateDisconnected)
		a.bus.Emit(events.TypeDisconnected, nil)

		if !a.shouldReconnect() {
			break
		}
	}

	if a.tr.Connected() {
		_ = a.tr.Disconnect(true)
	}
	a.running.Store(false)
	a.setState(StateDisconnected)
}

// nextAddress resolves where to connect: the armed redirect hop, or a
// full login preamble. A credential rejection stops the session.
func (a *Agent) nextAddress(ctx context.Context) (string, error) {
	if hop, redirecting := a.login.Redirect(); redirecting && hop.Address != "" {
		return net.JoinHostPort(hop.Address, strconv.Itoa(int(hop.Port))), nil
	}

	addr, err := a.preamble(ctx)
	if err != nil {
		a.bus.Error(err)
		if errors.Is(err, auth.ErrCredentials) {
			a.log.Warn("credentials rejected, stopping")
			a.running.Store(false)
			return "", err
		}
		a.log.Error("login preamble failed", "error", err)
		return "", err
	}
	return addr, nil
}

// shouldReconnect reports whether the worker should open another
// connection: only while running, and only with a redirect armed or
// auto-reconnect enabled.
func (a *Agent) shouldReconnect() bool {
	if !a.running.Load() {
		return false
	}
	if _, redirecting := a.login.Redirect(); redirecting {
		return true
	}
	_, autoReconnect := a.behavior.Get()
	return autoReconnect
}

// serviceLoop pumps transport events until disconnect or stop. Each idle
// poll runs one housekeeping pass.
func (a *Agent) serviceLoop() {
	for a.running.Load() {
		ev, err := a.tr.Service(serviceTimeout)
		if err != nil {
			a.bus.Error(err)
			a.log.Error("transport error", "error", err)
			return
		}
		if ev == nil {
			a.housekeep()
			continue
		}

		switch ev.Type {
		case transport.EventConnected:
			a.setState(StateAwaitingHello)
			a.bus.Emit(events.TypeConnected, map[string]any{"peer": ev.Peer.String()})

		case transport.EventReceived:
			a.handleMessage(ev.Data)

		case transport.EventDisconnected:
			return
		}
	}
}

// housekeep runs the periodic automation between packets.
func (a *Agent) housekeep() {
	autoCollect, _ := a.behavior.Get()
	if autoCollect && a.State() == StateInGame {
		a.Collect()
	}
}
