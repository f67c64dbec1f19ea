package socks5

import "errors"

// Negotiation and relay failures. Session creation surfaces these to the
// caller unchanged, so each failure mode keeps a distinct identity.
var (
	ErrUnsupportedVersion      = errors.New("socks5: unsupported protocol version")
	ErrAuthenticationFailed    = errors.New("socks5: authentication failed")
	ErrConnectionRefused       = errors.New("socks5: connection refused by destination")
	ErrNetworkUnreachable      = errors.New("socks5: network unreachable")
	ErrHostUnreachable         = errors.New("socks5: host unreachable")
	ErrConnectionReset         = errors.New("socks5: connection reset")
	ErrCommandNotSupported     = errors.New("socks5: command not supported")
	ErrAddressTypeNotSupported = errors.New("socks5: address type not supported")
	ErrGeneralFailure          = errors.New("socks5: general server failure")
	ErrInvalidResponse         = errors.New("socks5: invalid response")
)

// replyError maps a REP code from the server's command reply to one of the
// exported sentinel errors. Code 0 is success and never reaches here.
func replyError(code byte) error {
	switch code {
	case 0x01:
		return ErrGeneralFailure
	case 0x02:
		return ErrConnectionRefused // connection not allowed by ruleset
	case 0x03:
		return ErrNetworkUnreachable
	case 0x04:
		return ErrHostUnreachable
	case 0x05:
		return ErrConnectionRefused
	case 0x06:
		return ErrConnectionReset // TTL expired
	case 0x07:
		return ErrCommandNotSupported
	case 0x08:
		return ErrAddressTypeNotSupported
	default:
		return ErrInvalidResponse
	}
}
