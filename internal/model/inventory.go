package model

import (
	"fmt"
	"sync"

	"github.com/nrevox/growfleet/internal/protocol"
)

// CollectClamp is the per-slot ceiling applied when crediting collected
// drops. The wire carries a u8, but the game treats 200 as a full stack.
const CollectClamp = 200

// InventorySlot is one stack.
type InventorySlot struct {
	ID     uint16
	Amount uint8
	Flags  uint8
}

// Inventory mirrors the agent's server-side inventory. Guarded by its own
// lock; acquired after the world lock when both are needed.
type Inventory struct {
	mu       sync.RWMutex
	capacity uint32
	slots    map[uint16]InventorySlot
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{slots: make(map[uint16]InventorySlot)}
}

// Parse replaces the contents from a SendInventoryState payload:
// one skip byte, u32 capacity, u16 item count, then
// {u16 id, u8 amount, u8 flags} per slot.
func (inv *Inventory) Parse(data []byte) error {
	r := protocol.NewReader(data)
	if err := r.Skip(1); err != nil {
		return fmt.Errorf("inventory preamble: %w", err)
	}

	capacity, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("inventory capacity: %w", err)
	}
	count, err := r.ReadUint16()
	if err != nil {
		return fmt.Errorf("inventory count: %w", err)
	}

	slots := make(map[uint16]InventorySlot, count)
	for i := 0; i < int(count); i++ {
		var slot InventorySlot
		if slot.ID, err = r.ReadUint16(); err != nil {
			return fmt.Errorf("slot %d id: %w", i, err)
		}
		if slot.Amount, err = r.ReadByte(); err != nil {
			return fmt.Errorf("slot %d amount: %w", i, err)
		}
		if slot.Flags, err = r.ReadByte(); err != nil {
			return fmt.Errorf("slot %d flags: %w", i, err)
		}
		slots[slot.ID] = slot
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.capacity = capacity
	inv.slots = slots
	return nil
}

// Capacity returns the slot capacity reported by the server.
func (inv *Inventory) Capacity() uint32 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.capacity
}

// SetCapacity sets the slot capacity (used by tests and upgrades).
func (inv *Inventory) SetCapacity(n uint32) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.capacity = n
}

// Add credits amount of id, saturating at the u8 maximum.
func (inv *Inventory) Add(id uint16, amount uint8) {
	if amount == 0 {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	slot := inv.slots[id]
	slot.ID = id
	if sum := uint16(slot.Amount) + uint16(amount); sum > 0xFF {
		slot.Amount = 0xFF
	} else {
		slot.Amount = uint8(sum)
	}
	inv.slots[id] = slot
}

// AddClamped credits amount of id but never past the collect ceiling.
func (inv *Inventory) AddClamped(id uint16, amount uint8) {
	if amount == 0 {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	slot := inv.slots[id]
	slot.ID = id
	if sum := uint16(slot.Amount) + uint16(amount); sum > CollectClamp {
		slot.Amount = CollectClamp
	} else {
		slot.Amount = uint8(sum)
	}
	inv.slots[id] = slot
}

// Remove debits amount of id. Underflow returns false and leaves the
// slot untouched; draining a slot to zero deletes it.
func (inv *Inventory) Remove(id uint16, amount uint8) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	slot, ok := inv.slots[id]
	if !ok || slot.Amount < amount {
		return false
	}
	slot.Amount -= amount
	if slot.Amount == 0 {
		delete(inv.slots, id)
	} else {
		inv.slots[id] = slot
	}
	return true
}

// Count returns the stack size of id, 0 when absent.
func (inv *Inventory) Count(id uint16) uint8 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.slots[id].Amount
}

// Len returns the number of occupied slots.
func (inv *Inventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.slots)
}

// HasRoomFor reports whether a collected stack of id could be credited:
// either the slot exists below the clamp, or a free slot remains.
func (inv *Inventory) HasRoomFor(id uint16) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	if slot, ok := inv.slots[id]; ok {
		return slot.Amount < CollectClamp
	}
	return uint32(len(inv.slots)) < inv.capacity
}

// Snapshot returns a copy of all slots for callers.
func (inv *Inventory) Snapshot() []InventorySlot {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make([]InventorySlot, 0, len(inv.slots))
	for _, slot := range inv.slots {
		out = append(out, slot)
	}
	return out
}

// Reset drops all slots.
func (inv *Inventory) Reset() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.capacity = 0
	inv.slots = make(map[uint16]InventorySlot)
}
