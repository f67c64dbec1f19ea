package socks5

import (
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProxy drives the server side of the handshake over a pipe.
func fakeProxy(t *testing.T, script func(conn net.Conn)) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		script(server)
	}()
	return client
}

func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestAssociateNoAuth(t *testing.T) {
	relayPort := uint16(40000)
	conn := fakeProxy(t, func(s net.Conn) {
		greeting := make([]byte, 3)
		io.ReadFull(s, greeting)
		s.Write([]byte{0x05, methodNoAuth})

		req := make([]byte, 10) // VER CMD RSV ATYP(IPv4) ADDR PORT
		io.ReadFull(s, req)

		reply := []byte{0x05, 0x00, 0x00, atypIPv4, 127, 0, 0, 1}
		reply = binary.BigEndian.AppendUint16(reply, relayPort)
		s.Write(reply)
	})

	assoc, err := associateOn(conn, Config{Address: "proxy:1080"}, netip.AddrPort{})
	require.NoError(t, err)
	defer assoc.Close()

	assert.Equal(t, "127.0.0.1:40000", assoc.Relay().String())
}

func TestAssociateUserPass(t *testing.T) {
	conn := fakeProxy(t, func(s net.Conn) {
		head := make([]byte, 2)
		io.ReadFull(s, head)
		methods := make([]byte, int(head[1]))
		io.ReadFull(s, methods)
		s.Write([]byte{0x05, methodUserPass})

		// RFC 1929 subnegotiation
		verULen := make([]byte, 2)
		io.ReadFull(s, verULen)
		user := make([]byte, int(verULen[1]))
		io.ReadFull(s, user)
		plen := make([]byte, 1)
		io.ReadFull(s, plen)
		pass := make([]byte, int(plen[0]))
		io.ReadFull(s, pass)

		if string(user) != "agent" || string(pass) != "hunter2" {
			s.Write([]byte{userPassVersion, 0x01})
			return
		}
		s.Write([]byte{userPassVersion, 0x00})

		req := make([]byte, 10)
		io.ReadFull(s, req)
		reply := []byte{0x05, 0x00, 0x00, atypIPv4, 10, 0, 0, 9, 0x12, 0x34}
		s.Write(reply)
	})

	cfg := Config{Address: "proxy:1080", Username: "agent", Password: "hunter2"}
	assoc, err := associateOn(conn, cfg, netip.AddrPort{})
	require.NoError(t, err)
	defer assoc.Close()
	assert.Equal(t, uint16(0x1234), assoc.Relay().Port())
}

func TestAssociateAuthRejected(t *testing.T) {
	conn := fakeProxy(t, func(s net.Conn) {
		head := make([]byte, 2)
		io.ReadFull(s, head)
		methods := make([]byte, int(head[1]))
		io.ReadFull(s, methods)
		s.Write([]byte{0x05, methodNoAcceptable})
	})

	_, err := associateOn(conn, Config{Address: "proxy:1080"}, netip.AddrPort{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	conn.Close()
}

func TestAssociateBadVersion(t *testing.T) {
	conn := fakeProxy(t, func(s net.Conn) {
		head := make([]byte, 3)
		io.ReadFull(s, head)
		s.Write([]byte{0x04, methodNoAuth})
	})

	_, err := associateOn(conn, Config{Address: "proxy:1080"}, netip.AddrPort{})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	conn.Close()
}

func TestAssociateCommandRefused(t *testing.T) {
	cases := []struct {
		rep  byte
		want error
	}{
		{0x01, ErrGeneralFailure},
		{0x03, ErrNetworkUnreachable},
		{0x04, ErrHostUnreachable},
		{0x05, ErrConnectionRefused},
		{0x07, ErrCommandNotSupported},
		{0x08, ErrAddressTypeNotSupported},
	}

	for _, tc := range cases {
		conn := fakeProxy(t, func(s net.Conn) {
			head := make([]byte, 3)
			io.ReadFull(s, head)
			s.Write([]byte{0x05, methodNoAuth})
			req := make([]byte, 10)
			io.ReadFull(s, req)
			s.Write([]byte{0x05, tc.rep, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0})
		})

		_, err := associateOn(conn, Config{Address: "proxy:1080"}, netip.AddrPort{})
		assert.ErrorIs(t, err, tc.want, "rep=0x%02x", tc.rep)
		conn.Close()
	}
}

func TestEncapsulateIPv4(t *testing.T) {
	dst := netip.MustParseAddrPort("203.0.113.7:17091")
	out, err := Encapsulate(dst, []byte{0xAA, 0xBB})
	require.NoError(t, err)

	assert.Equal(t, HeaderSizeIPv4+2, len(out))
	assert.Equal(t, []byte{0, 0, 0, atypIPv4, 203, 0, 113, 7}, out[:8])
	assert.Equal(t, uint16(17091), binary.BigEndian.Uint16(out[8:10]))
	assert.Equal(t, []byte{0xAA, 0xBB}, out[10:])
}

func TestEncapDecapRoundTrip(t *testing.T) {
	for _, addr := range []string{"198.51.100.1:4000", "[2001:db8::1]:4000"} {
		dst := netip.MustParseAddrPort(addr)
		payload := []byte("hello world")

		wire, err := Encapsulate(dst, payload)
		require.NoError(t, err)

		src, got, err := Decapsulate(wire)
		require.NoError(t, err)
		assert.Equal(t, dst, src)
		assert.Equal(t, payload, got)
	}
}

func TestDecapsulateRefusesFragments(t *testing.T) {
	wire, err := Encapsulate(netip.MustParseAddrPort("198.51.100.1:4000"), []byte{1})
	require.NoError(t, err)
	wire[2] = 0x01

	_, _, err = Decapsulate(wire)
	assert.Error(t, err)
}

func TestDecapsulateRefusesDomain(t *testing.T) {
	wire := []byte{0, 0, 0, atypDomain, 4, 'h', 'o', 's', 't', 0x00, 0x50}
	_, _, err := Decapsulate(wire)
	assert.ErrorIs(t, err, ErrAddressTypeNotSupported)
}
