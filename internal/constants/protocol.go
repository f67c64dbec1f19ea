package constants

// Protocol constants for the sandbox-world wire protocol.
//
// The remote speaks a reliable-UDP channel whose payloads begin with a
// little-endian u32 message kind. Kind 4 (game packet) carries a 56-byte
// packed header, optionally followed by an extended payload.

const (
	// ProtocolVersion is the client protocol revision sent in the
	// server-directory request and in the ServerHello credential blob.
	ProtocolVersion = 216

	// GameVersion is the client build advertised to the login endpoints.
	GameVersion = "5.26"

	// PlatformID identifies the client platform in the credential blob
	// (0 = Windows).
	PlatformID = 0
)

const (
	// MessageKindSize is the u32 message-kind prefix on every payload.
	MessageKindSize = 4

	// GamePacketHeaderSize is the fixed game-packet header length.
	GamePacketHeaderSize = 56

	// MaxPacketSize bounds a single outbound payload. Reused as an inbound
	// sanity cap; the protocol itself does not specify an inbound maximum.
	MaxPacketSize = 1_000_000
)

// Transport channel configuration. The remote rejects peers that deviate.
const (
	TransportPeerLimit    = 1
	TransportChannelCount = 2
)

const (
	// ServiceTimeoutMs bounds a single transport service call so that
	// stopping an agent never waits longer than one poll interval.
	ServiceTimeoutMs = 100

	// HTTPRetryBackoffMs is the fixed backoff between retries of the three
	// login-preamble HTTP fetches. No other operation retries.
	HTTPRetryBackoffMs = 1000
)

// ExitWorld is the sentinel world name meaning "not in any world".
const ExitWorld = "EXIT"

// ServerDirectoryEndMarker terminates the key|value body of the
// server-directory response.
const ServerDirectoryEndMarker = "RTENDMARKERBS1001"
