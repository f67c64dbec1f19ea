package model

import "sync"

// BehaviorConfig holds the agent's automation toggles. Locked separately
// from the delay block so readers of one never contend on the other.
type BehaviorConfig struct {
	mu            sync.Mutex
	autoCollect   bool
	autoReconnect bool
}

// NewBehaviorConfig returns the defaults: reconnect on, collect off.
func NewBehaviorConfig() *BehaviorConfig {
	return &BehaviorConfig{autoReconnect: true}
}

// Get returns both toggles atomically.
func (c *BehaviorConfig) Get() (autoCollect, autoReconnect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCollect, c.autoReconnect
}

// Set replaces both toggles atomically.
func (c *BehaviorConfig) Set(autoCollect, autoReconnect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoCollect = autoCollect
	c.autoReconnect = autoReconnect
}

// Delays are the pacing knobs of the behavior primitives, milliseconds.
type Delays struct {
	FindPath uint32
	Punch    uint32
	Place    uint32
}

// DelayConfig guards the delay block.
type DelayConfig struct {
	mu sync.Mutex
	d  Delays
}

// NewDelayConfig returns pacing safe for live servers.
func NewDelayConfig() *DelayConfig {
	return &DelayConfig{d: Delays{FindPath: 200, Punch: 180, Place: 180}}
}

// Get returns all delays atomically.
func (c *DelayConfig) Get() Delays {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.d
}

// Set replaces all delays atomically.
func (c *DelayConfig) Set(d Delays) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.d = d
}
