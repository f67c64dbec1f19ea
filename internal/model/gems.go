package model

import "sync/atomic"

// Gems is the agent's gem balance. Credits arrive from drop pickups on
// the worker goroutine while the control surface reads concurrently.
type Gems struct {
	v atomic.Int32
}

// Add credits (or with a negative delta debits) the balance.
func (g *Gems) Add(delta int32) int32 { return g.v.Add(delta) }

// Load returns the current balance.
func (g *Gems) Load() int32 { return g.v.Load() }

// Store overwrites the balance, as from a server-announced total.
func (g *Gems) Store(v int32) { g.v.Store(v) }
