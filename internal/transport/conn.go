package transport

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/nrevox/growfleet/internal/constants"
	"github.com/nrevox/growfleet/internal/socks5"
)

const (
	defaultRTO          = 300 * time.Millisecond
	defaultMaxRetries   = 10
	defaultConnTimeout  = 5 * time.Second
	compressesThreshold = 512

	// Hold-queue cap per channel. A peer that opens a wider gap than this
	// is misbehaving; frames beyond the window are dropped and resent.
	holdWindow = 1024
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateDisconnecting
)

// Conn is a reliable ordered datagram channel to one peer. Not safe for
// concurrent Service calls; Send may be called from any goroutine.
type Conn struct {
	mu sync.Mutex

	log   *slog.Logger
	socks *socks5.Config // nil for the direct UDP path

	sock  PacketSocket
	peer  netip.AddrPort
	state connState

	send [constants.TransportChannelCount]sendChannel
	recv [constants.TransportChannelCount]recvChannel

	unacked map[ackKey]*pendingFrame
	pending []Event // events produced but not yet returned by Service

	connectDeadline    time.Time
	disconnectDeadline time.Time

	rto        time.Duration
	maxRetries int
}

type sendChannel struct {
	nextSeq uint16
}

type recvChannel struct {
	expected uint16
	hold     map[uint16]*frame
	assembly []byte
	compress bool
}

type ackKey struct {
	channel uint8
	seq     uint16
}

type pendingFrame struct {
	datagram []byte
	sentAt   time.Time
	retries  int
}

// Option adjusts Conn construction.
type Option func(*Conn)

// WithSOCKS5 routes the channel through a relay.
func WithSOCKS5(cfg socks5.Config) Option {
	return func(c *Conn) { c.socks = &cfg }
}

// WithLogger attaches a logger; defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Conn) { c.log = log }
}

// WithRetransmit overrides the retransmission timer and retry cap.
func WithRetransmit(rto time.Duration, maxRetries int) Option {
	return func(c *Conn) {
		c.rto = rto
		c.maxRetries = maxRetries
	}
}

// New creates an unconnected channel.
func New(opts ...Option) *Conn {
	c := &Conn{
		rto:        defaultRTO,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Connect resolves addr ("host:port"), opens the socket (direct or via the
// configured relay), and starts the handshake. The Connected event is
// delivered through Service once the peer verifies.
func (c *Conn) Connect(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", addr, err)
	}
	peer := udpAddr.AddrPort()

	var sock PacketSocket
	if c.socks.Enabled() {
		sock, err = dialSOCKS5(*c.socks, peer, defaultConnTimeout)
	} else {
		sock, err = dialUDP(peer)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateDisconnected {
		sock.Close()
		return fmt.Errorf("connect: channel already in use")
	}
	c.attach(sock, peer)
	return c.sendConnectLocked()
}

// attach installs a socket and resets per-connection state. Callers hold mu.
func (c *Conn) attach(sock PacketSocket, peer netip.AddrPort) {
	c.sock = sock
	c.peer = peer
	c.state = stateConnecting
	c.unacked = make(map[ackKey]*pendingFrame)
	c.connectDeadline = time.Now().Add(defaultConnTimeout)
	for i := range c.send {
		c.send[i] = sendChannel{}
		c.recv[i] = recvChannel{hold: make(map[uint16]*frame)}
	}
}

func (c *Conn) sendConnectLocked() error {
	f := &frame{kind: frameConnect, payload: defaultConnectConfig().marshal()}
	datagram := encodeFrame(f)
	c.unacked[ackKey{channel: 0, seq: 0}] = &pendingFrame{datagram: datagram, sentAt: time.Now()}
	return c.sock.Send(datagram)
}

// Send queues one message. Reliable messages are fragmented, sequenced,
// and retransmitted until acked; unreliable ones are fire-and-forget and
// must fit a single datagram.
func (c *Conn) Send(reliable bool, data []byte) error {
	if len(data) > constants.MaxPacketSize {
		return fmt.Errorf("send: %d bytes exceeds limit %d", len(data), constants.MaxPacketSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected && c.state != stateConnecting {
		return fmt.Errorf("send: not connected")
	}

	var flags uint8
	payload := data
	if len(payload) >= compressesThreshold {
		compressed, err := deflate(payload)
		if err != nil {
			return fmt.Errorf("send: compressing payload: %w", err)
		}
		if len(compressed) < len(payload) {
			payload = compressed
			flags |= flagCompressed
		}
	}

	if !reliable {
		if len(payload) > fragmentPayload {
			return fmt.Errorf("send: unreliable payload %d exceeds datagram capacity", len(payload))
		}
		f := &frame{kind: frameUnreliable, flags: flags, fragCount: 1}
		f.payload = payload
		return c.sock.Send(encodeFrame(f))
	}

	const ch = 0
	fragCount := (len(payload) + fragmentPayload - 1) / fragmentPayload
	if fragCount == 0 {
		fragCount = 1
	}

	for i := 0; i < fragCount; i++ {
		lo := i * fragmentPayload
		hi := min(lo+fragmentPayload, len(payload))

		seq := c.send[ch].nextSeq
		c.send[ch].nextSeq++

		f := &frame{
			kind:      frameReliable,
			flags:     flags,
			channel:   ch,
			seq:       seq,
			fragIndex: uint16(i),
			fragCount: uint16(fragCount),
			payload:   payload[lo:hi],
		}
		datagram := encodeFrame(f)
		c.unacked[ackKey{channel: ch, seq: seq}] = &pendingFrame{datagram: datagram, sentAt: time.Now()}
		if err := c.sock.Send(datagram); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return nil
}

// Disconnect tears the channel down. A graceful disconnect notifies the
// peer and reports Disconnected through Service once acknowledged (or
// after a bounded wait); an immediate one closes the socket and reports
// Disconnected on the next Service call.
func (c *Conn) Disconnect(graceful bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateDisconnected || c.sock == nil {
		return nil
	}

	if graceful {
		if c.state == stateDisconnecting {
			return nil
		}
		c.state = stateDisconnecting
		c.disconnectDeadline = time.Now().Add(defaultConnTimeout)
		return c.sock.Send(encodeFrame(&frame{kind: frameDisconnect, fragCount: 1}))
	}

	c.teardownLocked()
	return nil
}

// teardownLocked closes the socket and queues the Disconnected event.
func (c *Conn) teardownLocked() {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	c.state = stateDisconnected
	c.unacked = nil
	c.pending = append(c.pending, Event{Type: EventDisconnected, Peer: c.peer})
}

// Connected reports whether the handshake has completed.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Service polls the channel for up to timeout and returns at most one
// event. A nil event means nothing happened within the window.
func (c *Conn) Service(timeout time.Duration) (*Event, error) {
	c.mu.Lock()
	if ev := c.popPendingLocked(); ev != nil {
		c.mu.Unlock()
		return ev, nil
	}
	sock := c.sock
	state := c.state
	c.mu.Unlock()

	if sock == nil || state == stateDisconnected {
		time.Sleep(timeout)
		return nil, nil
	}

	datagram, err := sock.Recv(timeout)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if c.state == stateDisconnected {
			return c.popPendingLocked(), nil
		}
		c.log.Error("transport receive failed", "peer", c.peer, "err", err)
		c.teardownLocked()
		return c.popPendingLocked(), nil
	}

	if datagram != nil {
		if err := c.handleDatagramLocked(datagram); err != nil {
			// Malformed frame: report and drop; the channel survives.
			c.log.Warn("dropping malformed frame", "peer", c.peer, "err", err)
		}
	}

	c.housekeepLocked()
	return c.popPendingLocked(), nil
}

func (c *Conn) popPendingLocked() *Event {
	if len(c.pending) == 0 {
		return nil
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return &ev
}

func (c *Conn) handleDatagramLocked(datagram []byte) error {
	f, err := decodeFrame(datagram)
	if err != nil {
		return err
	}

	switch f.kind {
	case frameVerifyConnect:
		return c.handleVerifyLocked(f)
	case frameAck:
		delete(c.unacked, ackKey{channel: f.channel, seq: f.seq})
		return nil
	case frameReliable:
		return c.handleReliableLocked(f)
	case frameUnreliable:
		return c.deliverLocked(f.flags, f.payload)
	case frameDisconnect:
		if c.sock != nil {
			c.sock.Send(encodeFrame(&frame{kind: frameDisconnectAck, fragCount: 1}))
		}
		c.teardownLocked()
		return nil
	case frameDisconnectAck:
		if c.state == stateDisconnecting {
			c.teardownLocked()
		}
		return nil
	case framePing:
		return nil
	case frameConnect:
		return nil // we never accept inbound connects
	default:
		return fmt.Errorf("unhandled frame kind %d", f.kind)
	}
}

func (c *Conn) handleVerifyLocked(f *frame) error {
	if c.state != stateConnecting {
		return nil // duplicate verify
	}

	cfg, err := parseConnectConfig(f.payload)
	if err != nil {
		return err
	}
	want := defaultConnectConfig()
	if cfg != want {
		c.log.Error("peer rejected channel configuration", "peer", c.peer,
			"got_channels", cfg.channelCount, "want_channels", want.channelCount)
		c.teardownLocked()
		return nil
	}

	delete(c.unacked, ackKey{channel: 0, seq: 0})
	c.state = stateConnected
	c.pending = append(c.pending, Event{Type: EventConnected, Peer: c.peer})
	return nil
}

func (c *Conn) handleReliableLocked(f *frame) error {
	// Always ack, even duplicates: the ack may have been lost.
	if c.sock != nil {
		ack := &frame{kind: frameAck, channel: f.channel, seq: f.seq, fragCount: 1}
		c.sock.Send(encodeFrame(ack))
	}

	rc := &c.recv[f.channel]
	diff := int16(f.seq - rc.expected)
	switch {
	case diff < 0:
		return nil // duplicate of an already-delivered frame
	case diff > 0:
		if len(rc.hold) >= holdWindow {
			return fmt.Errorf("hold window exceeded on channel %d", f.channel)
		}
		held := *f
		held.payload = append([]byte(nil), f.payload...)
		rc.hold[f.seq] = &held
		return nil
	}

	if err := c.acceptInOrderLocked(rc, f); err != nil {
		return err
	}

	// Drain any held successors that are now in order.
	for {
		next, ok := rc.hold[rc.expected]
		if !ok {
			return nil
		}
		delete(rc.hold, rc.expected)
		if err := c.acceptInOrderLocked(rc, next); err != nil {
			return err
		}
	}
}

// acceptInOrderLocked consumes the frame at rc.expected, assembling
// fragmented messages and delivering complete ones.
func (c *Conn) acceptInOrderLocked(rc *recvChannel, f *frame) error {
	rc.expected++

	if f.fragCount <= 1 {
		return c.deliverLocked(f.flags, f.payload)
	}

	if f.fragIndex == 0 {
		rc.assembly = rc.assembly[:0]
		rc.compress = f.flags&flagCompressed != 0
	}
	rc.assembly = append(rc.assembly, f.payload...)
	if len(rc.assembly) > constants.MaxPacketSize {
		rc.assembly = rc.assembly[:0]
		return fmt.Errorf("assembled message exceeds sanity limit")
	}

	if int(f.fragIndex) == int(f.fragCount)-1 {
		var flags uint8
		if rc.compress {
			flags = flagCompressed
		}
		msg := append([]byte(nil), rc.assembly...)
		rc.assembly = rc.assembly[:0]
		return c.deliverLocked(flags, msg)
	}
	return nil
}

func (c *Conn) deliverLocked(flags uint8, payload []byte) error {
	data := append([]byte(nil), payload...)
	if flags&flagCompressed != 0 {
		out, err := inflate(data, constants.MaxPacketSize)
		if err != nil {
			return fmt.Errorf("decompressing payload: %w", err)
		}
		data = out
	}
	c.pending = append(c.pending, Event{Type: EventReceived, Peer: c.peer, Data: data})
	return nil
}

// housekeepLocked retransmits overdue frames and enforces handshake and
// disconnect deadlines.
func (c *Conn) housekeepLocked() {
	if c.state == stateDisconnected || c.sock == nil {
		return
	}

	now := time.Now()

	if c.state == stateConnecting && now.After(c.connectDeadline) {
		c.log.Error("connect handshake timed out", "peer", c.peer)
		c.teardownLocked()
		return
	}
	if c.state == stateDisconnecting && now.After(c.disconnectDeadline) {
		c.teardownLocked()
		return
	}

	for key, pf := range c.unacked {
		if now.Sub(pf.sentAt) < c.rto {
			continue
		}
		if pf.retries >= c.maxRetries {
			c.log.Error("retransmission limit reached", "peer", c.peer, "channel", key.channel, "seq", key.seq)
			c.teardownLocked()
			return
		}
		pf.retries++
		pf.sentAt = now
		c.sock.Send(pf.datagram)
	}
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte, limit int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, fmt.Errorf("decompressed payload exceeds %d bytes", limit)
	}
	return out, nil
}
