// Package transport implements the reliable ordered datagram channel an
// agent holds to its current server, over either a plain UDP socket or a
// UDP-through-SOCKS5 relay. One Conn talks to exactly one peer.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/nrevox/growfleet/internal/socks5"
)

// PacketSocket is the capability a Conn needs from its datagram carrier.
// Implementations deliver whole datagrams to and from a single peer.
type PacketSocket interface {
	// Send transmits one datagram to the peer.
	Send(b []byte) error
	// Recv waits up to timeout for one datagram. Returns (nil, nil) on
	// timeout.
	Recv(timeout time.Duration) ([]byte, error)
	// LocalAddr returns the local UDP endpoint.
	LocalAddr() netip.AddrPort
	// Close releases the socket (and any control channel).
	Close() error
}

// udpSocket is the direct path: one connected UDP socket.
type udpSocket struct {
	conn *net.UDPConn
}

// dialUDP opens a connected UDP socket to peer.
func dialUDP(peer netip.AddrPort) (*udpSocket, error) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(peer))
	if err != nil {
		return nil, fmt.Errorf("dialing udp %s: %w", peer, err)
	}
	return &udpSocket{conn: conn}, nil
}

func (s *udpSocket) Send(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

func (s *udpSocket) Recv(timeout time.Duration) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	buf := make([]byte, maxDatagramSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

func (s *udpSocket) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (s *udpSocket) Close() error {
	return s.conn.Close()
}

// socksSocket tunnels datagrams through a SOCKS5 relay. Every outbound
// datagram is wrapped in the relay header naming the real peer; inbound
// datagrams are unwrapped and filtered by source.
type socksSocket struct {
	conn  *net.UDPConn
	assoc *socks5.Association
	peer  netip.AddrPort
}

// dialSOCKS5 performs the one-time TCP control handshake and opens the
// local datagram socket toward the relay.
func dialSOCKS5(cfg socks5.Config, peer netip.AddrPort, timeout time.Duration) (*socksSocket, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("opening udp socket: %w", err)
	}

	assoc, err := socks5.Associate(cfg, conn.LocalAddr().(*net.UDPAddr).AddrPort(), timeout)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks5 associate: %w", err)
	}

	return &socksSocket{conn: conn, assoc: assoc, peer: peer}, nil
}

func (s *socksSocket) Send(b []byte) error {
	wrapped, err := socks5.Encapsulate(s.peer, b)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDPAddrPort(wrapped, s.assoc.Relay())
	return err
}

func (s *socksSocket) Recv(timeout time.Duration) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	buf := make([]byte, maxDatagramSize+socks5.HeaderSizeIPv6)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			return nil, err
		}
		if from != s.assoc.Relay() {
			continue // stray datagram, not from our relay
		}

		src, payload, err := socks5.Decapsulate(buf[:n])
		if err != nil {
			return nil, fmt.Errorf("socks5 decapsulate: %w", err)
		}
		if src != s.peer {
			continue
		}

		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
}

func (s *socksSocket) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (s *socksSocket) Close() error {
	err := s.conn.Close()
	if cerr := s.assoc.Close(); err == nil {
		err = cerr
	}
	return err
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
