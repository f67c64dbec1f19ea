package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nrevox/growfleet/internal/constants"
)

// FlagExtended marks a game packet whose header is followed by
// ExtendedDataLength bytes of payload.
const FlagExtended = 0x8

// GamePacket is the 56-byte packed header of a MessageGamePacket payload,
// plus the optional extended region.
type GamePacket struct {
	Type               PacketType
	Unk1               uint8
	Unk2               uint8
	Unk3               uint8
	NetID              uint32
	TargetNetID        uint32
	Flags              uint32
	FloatVariable      float32
	Value              uint32
	VectorX            float32
	VectorY            float32
	VectorX2           float32
	VectorY2           float32
	Unk12              float32
	IntX               int32
	IntY               int32
	ExtendedDataLength uint32

	Extended []byte
}

// WithExtended attaches payload bytes and sets the extended flag and
// length accordingly.
func (p *GamePacket) WithExtended(data []byte) *GamePacket {
	p.Flags |= FlagExtended
	p.ExtendedDataLength = uint32(len(data))
	p.Extended = data
	return p
}

// Marshal renders the header (and extended region when flagged) without
// the u32 message-kind prefix.
func (p *GamePacket) Marshal() ([]byte, error) {
	ext := p.Extended
	if p.Flags&FlagExtended != 0 {
		if int(p.ExtendedDataLength) != len(ext) {
			return nil, fmt.Errorf("marshal game packet: extended length %d does not match payload %d",
				p.ExtendedDataLength, len(ext))
		}
	} else {
		ext = nil
	}

	size := constants.GamePacketHeaderSize + len(ext)
	if size > constants.MaxPacketSize {
		return nil, fmt.Errorf("marshal game packet: %d bytes exceeds limit %d", size, constants.MaxPacketSize)
	}

	buf := make([]byte, size)
	buf[0] = byte(p.Type)
	buf[1] = p.Unk1
	buf[2] = p.Unk2
	buf[3] = p.Unk3
	binary.LittleEndian.PutUint32(buf[4:], p.NetID)
	binary.LittleEndian.PutUint32(buf[8:], p.TargetNetID)
	binary.LittleEndian.PutUint32(buf[12:], p.Flags)
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(p.FloatVariable))
	binary.LittleEndian.PutUint32(buf[20:], p.Value)
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(p.VectorX))
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(p.VectorY))
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(p.VectorX2))
	binary.LittleEndian.PutUint32(buf[36:], math.Float32bits(p.VectorY2))
	binary.LittleEndian.PutUint32(buf[40:], math.Float32bits(p.Unk12))
	binary.LittleEndian.PutUint32(buf[44:], uint32(p.IntX))
	binary.LittleEndian.PutUint32(buf[48:], uint32(p.IntY))
	binary.LittleEndian.PutUint32(buf[52:], p.ExtendedDataLength)
	copy(buf[constants.GamePacketHeaderSize:], ext)
	return buf, nil
}

// UnmarshalGamePacket parses the header and extended region from the bytes
// that follow the message-kind prefix.
func UnmarshalGamePacket(data []byte) (*GamePacket, error) {
	if len(data) < constants.GamePacketHeaderSize {
		return nil, fmt.Errorf("game packet too short: %d bytes", len(data))
	}

	p := &GamePacket{
		Type:               PacketType(data[0]),
		Unk1:               data[1],
		Unk2:               data[2],
		Unk3:               data[3],
		NetID:              binary.LittleEndian.Uint32(data[4:]),
		TargetNetID:        binary.LittleEndian.Uint32(data[8:]),
		Flags:              binary.LittleEndian.Uint32(data[12:]),
		FloatVariable:      math.Float32frombits(binary.LittleEndian.Uint32(data[16:])),
		Value:              binary.LittleEndian.Uint32(data[20:]),
		VectorX:            math.Float32frombits(binary.LittleEndian.Uint32(data[24:])),
		VectorY:            math.Float32frombits(binary.LittleEndian.Uint32(data[28:])),
		VectorX2:           math.Float32frombits(binary.LittleEndian.Uint32(data[32:])),
		VectorY2:           math.Float32frombits(binary.LittleEndian.Uint32(data[36:])),
		Unk12:              math.Float32frombits(binary.LittleEndian.Uint32(data[40:])),
		IntX:               int32(binary.LittleEndian.Uint32(data[44:])),
		IntY:               int32(binary.LittleEndian.Uint32(data[48:])),
		ExtendedDataLength: binary.LittleEndian.Uint32(data[52:]),
	}

	if p.Flags&FlagExtended != 0 {
		want := int(p.ExtendedDataLength)
		rest := data[constants.GamePacketHeaderSize:]
		if want > constants.MaxPacketSize {
			return nil, fmt.Errorf("game packet extended length %d exceeds limit", want)
		}
		if len(rest) < want {
			return nil, fmt.Errorf("game packet extended region short: want %d, have %d", want, len(rest))
		}
		p.Extended = make([]byte, want)
		copy(p.Extended, rest[:want])
	}
	return p, nil
}

// EncodeMessage prepends the u32 message kind to body.
func EncodeMessage(kind MessageKind, body []byte) ([]byte, error) {
	size := constants.MessageKindSize + len(body)
	if size > constants.MaxPacketSize {
		return nil, fmt.Errorf("encode message: %d bytes exceeds limit %d", size, constants.MaxPacketSize)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf, uint32(kind))
	copy(buf[constants.MessageKindSize:], body)
	return buf, nil
}

// EncodeTextMessage renders a text payload (GenericText / GameMessage).
// The remote expects a trailing NUL.
func EncodeTextMessage(kind MessageKind, text string) ([]byte, error) {
	body := make([]byte, len(text)+1)
	copy(body, text)
	return EncodeMessage(kind, body)
}

// DecodeMessage splits an inbound payload into its message kind and body.
func DecodeMessage(data []byte) (MessageKind, []byte, error) {
	if len(data) < constants.MessageKindSize {
		return MessageUnknown, nil, fmt.Errorf("frame too short for message kind: %d bytes", len(data))
	}
	if len(data) > constants.MaxPacketSize {
		return MessageUnknown, nil, fmt.Errorf("frame of %d bytes exceeds sanity limit", len(data))
	}
	kind := MessageKind(binary.LittleEndian.Uint32(data))
	return kind, data[constants.MessageKindSize:], nil
}

// DecodeText interprets a message body as NUL- or frame-terminated text.
func DecodeText(body []byte) string {
	for i, b := range body {
		if b == 0 {
			return string(body[:i])
		}
	}
	return string(body)
}
