// Package socks5 implements the client half of RFC 1928 UDP ASSOCIATE,
// which is the only SOCKS5 command the transport needs. The TCP control
// channel stays open for the lifetime of the association; closing it tears
// the relay down on the proxy side.
package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"
)

const (
	socksVersion = 0x05

	methodNoAuth       = 0x00
	methodUserPass     = 0x02
	methodNoAcceptable = 0xFF

	cmdUDPAssociate = 0x03

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	userPassVersion = 0x01
)

// Config names the proxy and optional credentials for one association.
type Config struct {
	Address  string `yaml:"address"` // host:port of the proxy's TCP port
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether a proxy address is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Address != ""
}

// Association is an established UDP ASSOCIATE: the relay endpoint to send
// encapsulated datagrams to, plus the control connection that keeps it
// alive.
type Association struct {
	control net.Conn
	relay   netip.AddrPort
}

// Relay returns the proxy's datagram endpoint.
func (a *Association) Relay() netip.AddrPort {
	return a.relay
}

// Close tears down the association by closing the control channel.
func (a *Association) Close() error {
	return a.control.Close()
}

// Associate dials the proxy, negotiates an auth method, and issues
// UDP ASSOCIATE. localAddr is the client's UDP endpoint announced in the
// request (may be the zero AddrPort when unknown, per RFC 1928).
func Associate(cfg Config, localAddr netip.AddrPort, timeout time.Duration) (*Association, error) {
	conn, err := net.DialTimeout("tcp", cfg.Address, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing proxy %s: %w", cfg.Address, err)
	}

	assoc, err := associateOn(conn, cfg, localAddr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return assoc, nil
}

// associateOn runs the handshake over an existing control connection.
// Split out so tests can drive it over a pipe.
func associateOn(conn net.Conn, cfg Config, localAddr netip.AddrPort) (*Association, error) {
	if err := negotiateMethod(conn, cfg); err != nil {
		return nil, err
	}

	relay, err := requestUDPAssociate(conn, localAddr)
	if err != nil {
		return nil, err
	}
	return &Association{control: conn, relay: relay}, nil
}

// negotiateMethod offers no-auth (and user/pass when credentials are set)
// and completes the user/pass subnegotiation when the server picks it.
func negotiateMethod(conn net.Conn, cfg Config) error {
	methods := []byte{methodNoAuth}
	if cfg.Username != "" {
		methods = append(methods, methodUserPass)
	}

	greeting := append([]byte{socksVersion, byte(len(methods))}, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return fmt.Errorf("writing greeting: %w", err)
	}

	var choice [2]byte
	if _, err := io.ReadFull(conn, choice[:]); err != nil {
		return fmt.Errorf("reading method choice: %w", err)
	}
	if choice[0] != socksVersion {
		return ErrUnsupportedVersion
	}

	switch choice[1] {
	case methodNoAuth:
		return nil
	case methodUserPass:
		if cfg.Username == "" {
			return ErrAuthenticationFailed
		}
		return authenticate(conn, cfg.Username, cfg.Password)
	case methodNoAcceptable:
		return ErrAuthenticationFailed
	default:
		return ErrInvalidResponse
	}
}

// authenticate performs the RFC 1929 user/pass subnegotiation.
func authenticate(conn net.Conn, user, pass string) error {
	if len(user) > 255 || len(pass) > 255 {
		return fmt.Errorf("socks5: credentials exceed 255 bytes")
	}

	req := make([]byte, 0, 3+len(user)+len(pass))
	req = append(req, userPassVersion, byte(len(user)))
	req = append(req, user...)
	req = append(req, byte(len(pass)))
	req = append(req, pass...)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("writing auth request: %w", err)
	}

	var resp [2]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return fmt.Errorf("reading auth response: %w", err)
	}
	if resp[0] != userPassVersion {
		return ErrInvalidResponse
	}
	if resp[1] != 0x00 {
		return ErrAuthenticationFailed
	}
	return nil
}

// requestUDPAssociate issues the command and parses the relay endpoint
// from the reply.
func requestUDPAssociate(conn net.Conn, localAddr netip.AddrPort) (netip.AddrPort, error) {
	addr := localAddr.Addr()
	if !addr.IsValid() {
		addr = netip.IPv4Unspecified()
	}

	req := []byte{socksVersion, cmdUDPAssociate, 0x00}
	if addr.Is4() {
		b := addr.As4()
		req = append(req, atypIPv4)
		req = append(req, b[:]...)
	} else {
		b := addr.As16()
		req = append(req, atypIPv6)
		req = append(req, b[:]...)
	}
	req = binary.BigEndian.AppendUint16(req, localAddr.Port())

	if _, err := conn.Write(req); err != nil {
		return netip.AddrPort{}, fmt.Errorf("writing associate request: %w", err)
	}

	var head [4]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return netip.AddrPort{}, fmt.Errorf("reading associate reply: %w", err)
	}
	if head[0] != socksVersion {
		return netip.AddrPort{}, ErrUnsupportedVersion
	}
	if head[1] != 0x00 {
		return netip.AddrPort{}, replyError(head[1])
	}

	var relayAddr netip.Addr
	switch head[3] {
	case atypIPv4:
		var b [4]byte
		if _, err := io.ReadFull(conn, b[:]); err != nil {
			return netip.AddrPort{}, fmt.Errorf("reading relay address: %w", err)
		}
		relayAddr = netip.AddrFrom4(b)
	case atypIPv6:
		var b [16]byte
		if _, err := io.ReadFull(conn, b[:]); err != nil {
			return netip.AddrPort{}, fmt.Errorf("reading relay address: %w", err)
		}
		relayAddr = netip.AddrFrom16(b)
	case atypDomain:
		// A datagram relay must be a concrete address.
		return netip.AddrPort{}, ErrAddressTypeNotSupported
	default:
		return netip.AddrPort{}, ErrInvalidResponse
	}

	var port [2]byte
	if _, err := io.ReadFull(conn, port[:]); err != nil {
		return netip.AddrPort{}, fmt.Errorf("reading relay port: %w", err)
	}
	return netip.AddrPortFrom(relayAddr, binary.BigEndian.Uint16(port[:])), nil
}
