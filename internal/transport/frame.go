package transport

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/nrevox/growfleet/internal/constants"
)

// Datagram layout (little-endian):
//
//	0..3   crc32 (IEEE) over bytes 4..end
//	4      frame kind
//	5      flags
//	6      channel
//	7..8   sequence number
//	9..10  fragment index
//	11..12 fragment count
//	13..   payload
//
// Control frames (connect, verifyConnect, ack, disconnect) reuse the same
// header with the fragment fields zeroed.
const (
	frameHeaderSize = 13

	maxDatagramSize  = 1400
	fragmentPayload  = 1024
	maxFragmentCount = (constants.MaxPacketSize + fragmentPayload - 1) / fragmentPayload
)

type frameKind uint8

const (
	frameConnect frameKind = iota + 1
	frameVerifyConnect
	frameAck
	frameReliable
	frameUnreliable
	frameDisconnect
	frameDisconnectAck
	framePing
)

// Frame flags.
const (
	flagCompressed = 0x01
)

// Connect-config feature bits, echoed back by the peer on verify.
const (
	featureCompression = 0x01
	featureChecksum    = 0x02
	featureInterop     = 0x04

	connectFeatures = featureCompression | featureChecksum | featureInterop
)

type frame struct {
	kind      frameKind
	flags     uint8
	channel   uint8
	seq       uint16
	fragIndex uint16
	fragCount uint16
	payload   []byte
}

// encodeFrame renders f with its checksum prefix.
func encodeFrame(f *frame) []byte {
	buf := make([]byte, frameHeaderSize+len(f.payload))
	buf[4] = byte(f.kind)
	buf[5] = f.flags
	buf[6] = f.channel
	binary.LittleEndian.PutUint16(buf[7:], f.seq)
	binary.LittleEndian.PutUint16(buf[9:], f.fragIndex)
	binary.LittleEndian.PutUint16(buf[11:], f.fragCount)
	copy(buf[frameHeaderSize:], f.payload)
	binary.LittleEndian.PutUint32(buf, crc32.ChecksumIEEE(buf[4:]))
	return buf
}

// decodeFrame verifies the checksum and parses the header. The payload
// aliases the datagram buffer.
func decodeFrame(datagram []byte) (*frame, error) {
	if len(datagram) < frameHeaderSize {
		return nil, fmt.Errorf("datagram too short: %d bytes", len(datagram))
	}

	want := binary.LittleEndian.Uint32(datagram)
	if got := crc32.ChecksumIEEE(datagram[4:]); got != want {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", got, want)
	}

	f := &frame{
		kind:      frameKind(datagram[4]),
		flags:     datagram[5],
		channel:   datagram[6],
		seq:       binary.LittleEndian.Uint16(datagram[7:]),
		fragIndex: binary.LittleEndian.Uint16(datagram[9:]),
		fragCount: binary.LittleEndian.Uint16(datagram[11:]),
		payload:   datagram[frameHeaderSize:],
	}

	if f.kind < frameConnect || f.kind > framePing {
		return nil, fmt.Errorf("unknown frame kind %d", f.kind)
	}
	if f.channel >= constants.TransportChannelCount && f.kind != frameConnect && f.kind != frameVerifyConnect {
		return nil, fmt.Errorf("channel %d out of range", f.channel)
	}
	if f.fragCount > maxFragmentCount {
		return nil, fmt.Errorf("fragment count %d exceeds limit", f.fragCount)
	}
	return f, nil
}

// connectConfig is the payload of connect and verifyConnect frames. The
// remote refuses peers whose configuration deviates, so both sides check
// the echo.
type connectConfig struct {
	peerLimit    uint8
	channelCount uint8
	features     uint8
}

func defaultConnectConfig() connectConfig {
	return connectConfig{
		peerLimit:    constants.TransportPeerLimit,
		channelCount: constants.TransportChannelCount,
		features:     connectFeatures,
	}
}

func (c connectConfig) marshal() []byte {
	return []byte{c.peerLimit, c.channelCount, c.features}
}

func parseConnectConfig(payload []byte) (connectConfig, error) {
	if len(payload) < 3 {
		return connectConfig{}, fmt.Errorf("connect config too short: %d bytes", len(payload))
	}
	return connectConfig{peerLimit: payload[0], channelCount: payload[1], features: payload[2]}, nil
}
