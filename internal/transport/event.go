package transport

import "net/netip"

// EventType classifies what Service observed.
type EventType int

const (
	// EventConnected fires once the peer verifies the connection.
	EventConnected EventType = iota
	// EventDisconnected fires on peer disconnect, retry exhaustion, or
	// completion of a graceful local disconnect.
	EventDisconnected
	// EventReceived carries one complete inbound message payload.
	EventReceived
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventReceived:
		return "RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// Event is one observation from the channel. Data is only set for
// EventReceived and is owned by the caller.
type Event struct {
	Type EventType
	Peer netip.AddrPort
	Data []byte
}
