package transport

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrevox/growfleet/internal/constants"
)

// memSocket is an in-memory PacketSocket backed by channels, so the
// channel logic can be driven synchronously without real UDP.
type memSocket struct {
	in  chan []byte
	out chan []byte
}

func memPair() (*memSocket, *memSocket) {
	a2b := make(chan []byte, 256)
	b2a := make(chan []byte, 256)
	return &memSocket{in: b2a, out: a2b}, &memSocket{in: a2b, out: b2a}
}

func (s *memSocket) Send(b []byte) error {
	cp := append([]byte(nil), b...)
	select {
	case s.out <- cp:
	default:
	}
	return nil
}

func (s *memSocket) Recv(timeout time.Duration) ([]byte, error) {
	select {
	case b := <-s.in:
		return b, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (s *memSocket) LocalAddr() netip.AddrPort {
	return netip.MustParseAddrPort("127.0.0.1:1")
}

func (s *memSocket) Close() error { return nil }

var testPeer = netip.MustParseAddrPort("203.0.113.9:17091")

// newTestConn wires a Conn to one end of a memory pair and returns the
// other end, which plays the server.
func newTestConn(t *testing.T) (*Conn, *memSocket) {
	t.Helper()
	client, server := memPair()

	c := New(WithRetransmit(50*time.Millisecond, 3))
	c.mu.Lock()
	c.attach(client, testPeer)
	require.NoError(t, c.sendConnectLocked())
	c.mu.Unlock()
	return c, server
}

// serverRecv pops the next datagram the client sent, failing on silence.
func serverRecv(t *testing.T, s *memSocket) *frame {
	t.Helper()
	select {
	case b := <-s.in:
		f, err := decodeFrame(b)
		require.NoError(t, err)
		return f
	case <-time.After(time.Second):
		t.Fatal("no datagram from client")
		return nil
	}
}

func serverSend(t *testing.T, s *memSocket, f *frame) {
	t.Helper()
	require.NoError(t, s.Send(encodeFrame(f)))
}

// completeHandshake consumes the connect frame and verifies it.
func completeHandshake(t *testing.T, c *Conn, s *memSocket) {
	t.Helper()
	f := serverRecv(t, s)
	require.Equal(t, frameConnect, f.kind)
	serverSend(t, s, &frame{kind: frameVerifyConnect, payload: defaultConnectConfig().marshal()})

	ev, err := c.Service(time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventConnected, ev.Type)
	assert.Equal(t, testPeer, ev.Peer)
}

// serviceUntil drains Service until an event of the wanted type appears.
func serviceUntil(t *testing.T, c *Conn, want EventType) *Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := c.Service(20 * time.Millisecond)
		require.NoError(t, err)
		if ev != nil && ev.Type == want {
			return ev
		}
	}
	t.Fatalf("no %v event before deadline", want)
	return nil
}

func TestConnectHandshake(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)
	assert.True(t, c.Connected())
}

func TestConnectConfigMismatchDisconnects(t *testing.T) {
	c, s := newTestConn(t)
	serverRecv(t, s)
	serverSend(t, s, &frame{kind: frameVerifyConnect, payload: []byte{4, 8, 0}})

	ev := serviceUntil(t, c, EventDisconnected)
	assert.Equal(t, EventDisconnected, ev.Type)
	assert.False(t, c.Connected())
}

func TestReliableSendIsAcked(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	require.NoError(t, c.Send(true, []byte("ping")))

	f := serverRecv(t, s)
	assert.Equal(t, frameReliable, f.kind)
	assert.Equal(t, uint16(0), f.seq)
	assert.Equal(t, []byte("ping"), f.payload)

	serverSend(t, s, &frame{kind: frameAck, channel: f.channel, seq: f.seq, fragCount: 1})
	_, err := c.Service(20 * time.Millisecond)
	require.NoError(t, err)

	c.mu.Lock()
	assert.Empty(t, c.unacked)
	c.mu.Unlock()
}

func TestUnackedFrameIsRetransmitted(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	require.NoError(t, c.Send(true, []byte("again")))
	first := serverRecv(t, s)

	// Never ack; the retransmit timer must fire during Service.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.Service(20 * time.Millisecond)
		select {
		case b := <-s.in:
			f, err := decodeFrame(b)
			require.NoError(t, err)
			assert.Equal(t, first.seq, f.seq)
			assert.Equal(t, []byte("again"), f.payload)
			return
		default:
		}
	}
	t.Fatal("no retransmission observed")
}

func TestInboundOrderingRestored(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	// Deliver seq 1 before seq 0: the channel must hold it back.
	serverSend(t, s, &frame{kind: frameReliable, seq: 1, fragCount: 1, payload: []byte("second")})
	serverSend(t, s, &frame{kind: frameReliable, seq: 0, fragCount: 1, payload: []byte("first")})

	ev := serviceUntil(t, c, EventReceived)
	assert.Equal(t, []byte("first"), ev.Data)
	ev = serviceUntil(t, c, EventReceived)
	assert.Equal(t, []byte("second"), ev.Data)
}

func TestDuplicateFrameSuppressed(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	msg := &frame{kind: frameReliable, seq: 0, fragCount: 1, payload: []byte("once")}
	serverSend(t, s, msg)
	ev := serviceUntil(t, c, EventReceived)
	assert.Equal(t, []byte("once"), ev.Data)

	serverSend(t, s, msg)
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, err := c.Service(20 * time.Millisecond)
		require.NoError(t, err)
		if got != nil {
			assert.NotEqual(t, EventReceived, got.Type, "duplicate delivered twice")
		}
	}
}

func TestFragmentedMessageReassembled(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	// Large incompressible-ish payload forces fragmentation on send.
	payload := make([]byte, fragmentPayload*3+17)
	for i := range payload {
		payload[i] = byte(i*7 + i>>8)
	}
	require.NoError(t, c.Send(true, payload))

	// Collect every fragment, ack each, feed them back to a second conn
	// to prove reassembly. Simpler: reassemble manually here.
	var frags []*frame
	total := -1
	for total == -1 || len(frags) < total {
		f := serverRecv(t, s)
		require.Equal(t, frameReliable, f.kind)
		frags = append(frags, f)
		total = int(f.fragCount)
	}

	var joined []byte
	for _, f := range frags {
		joined = append(joined, f.payload...)
	}
	if frags[0].flags&flagCompressed != 0 {
		out, err := inflate(joined, constants.MaxPacketSize)
		require.NoError(t, err)
		joined = out
	}
	assert.Equal(t, payload, joined)
}

func TestInboundFragmentsDelivered(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	part1 := []byte("hello, ")
	part2 := []byte("world")
	serverSend(t, s, &frame{kind: frameReliable, seq: 0, fragIndex: 0, fragCount: 2, payload: part1})
	serverSend(t, s, &frame{kind: frameReliable, seq: 1, fragIndex: 1, fragCount: 2, payload: part2})

	ev := serviceUntil(t, c, EventReceived)
	assert.Equal(t, []byte("hello, world"), ev.Data)
}

func TestOversizeSendRefused(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	err := c.Send(true, make([]byte, constants.MaxPacketSize+1))
	assert.Error(t, err)
}

func TestGracefulDisconnect(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	require.NoError(t, c.Disconnect(true))
	f := serverRecv(t, s)
	assert.Equal(t, frameDisconnect, f.kind)
	serverSend(t, s, &frame{kind: frameDisconnectAck, fragCount: 1})

	ev := serviceUntil(t, c, EventDisconnected)
	assert.Equal(t, EventDisconnected, ev.Type)
	assert.False(t, c.Connected())
}

func TestPeerDisconnect(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	serverSend(t, s, &frame{kind: frameDisconnect, fragCount: 1})
	ev := serviceUntil(t, c, EventDisconnected)
	assert.Equal(t, EventDisconnected, ev.Type)
}

func TestCorruptDatagramDropped(t *testing.T) {
	c, s := newTestConn(t)
	completeHandshake(t, c, s)

	bad := encodeFrame(&frame{kind: frameReliable, seq: 0, fragCount: 1, payload: []byte("x")})
	bad[len(bad)-1] ^= 0xFF // breaks the checksum
	require.NoError(t, s.Send(bad))

	// Channel survives and still delivers a good frame afterwards.
	serverSend(t, s, &frame{kind: frameReliable, seq: 0, fragCount: 1, payload: []byte("ok")})
	ev := serviceUntil(t, c, EventReceived)
	assert.Equal(t, []byte("ok"), ev.Data)
}

func TestFrameRoundTrip(t *testing.T) {
	f := &frame{
		kind:      frameReliable,
		flags:     flagCompressed,
		channel:   1,
		seq:       0xBEEF,
		fragIndex: 2,
		fragCount: 5,
		payload:   []byte{1, 2, 3},
	}
	got, err := decodeFrame(encodeFrame(f))
	require.NoError(t, err)
	assert.Equal(t, f.kind, got.kind)
	assert.Equal(t, f.flags, got.flags)
	assert.Equal(t, f.channel, got.channel)
	assert.Equal(t, f.seq, got.seq)
	assert.Equal(t, f.fragIndex, got.fragIndex)
	assert.Equal(t, f.fragCount, got.fragCount)
	assert.Equal(t, f.payload, got.payload)
}

func TestDeflateInflateRoundTrip(t *testing.T) {
	data := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbb")
	packed, err := deflate(data)
	require.NoError(t, err)
	out, err := inflate(packed, constants.MaxPacketSize)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
