package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrevox/growfleet/internal/constants"
)

func TestGamePacketRoundTrip(t *testing.T) {
	p := &GamePacket{
		Type:          PacketTileChangeRequest,
		NetID:         42,
		TargetNetID:   7,
		FloatVariable: 1.5,
		Value:         18,
		VectorX:       96,
		VectorY:       128,
		VectorX2:      -1,
		VectorY2:      0.25,
		IntX:          -3,
		IntY:          12,
	}

	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, constants.GamePacketHeaderSize, len(raw))

	got, err := UnmarshalGamePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestGamePacketRoundTripExtended(t *testing.T) {
	ext := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	p := (&GamePacket{Type: PacketCallFunction, NetID: 9}).WithExtended(ext)

	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, constants.GamePacketHeaderSize+len(ext), len(raw))

	got, err := UnmarshalGamePacket(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(ext)), got.ExtendedDataLength)
	assert.Equal(t, ext, got.Extended)
	assert.Equal(t, p, got)
}

func TestGamePacketExtendedIgnoredWithoutFlag(t *testing.T) {
	// Trailing bytes without flag 0x8 are not part of the packet.
	p := &GamePacket{Type: PacketState, ExtendedDataLength: 4}
	raw, err := p.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalGamePacket(raw)
	require.NoError(t, err)
	assert.Nil(t, got.Extended)
}

func TestGamePacketShortHeader(t *testing.T) {
	_, err := UnmarshalGamePacket(make([]byte, constants.GamePacketHeaderSize-1))
	assert.Error(t, err)
}

func TestGamePacketShortExtendedRegion(t *testing.T) {
	p := (&GamePacket{Type: PacketCallFunction}).WithExtended([]byte{1, 2, 3, 4})
	raw, err := p.Marshal()
	require.NoError(t, err)

	_, err = UnmarshalGamePacket(raw[:len(raw)-2])
	assert.Error(t, err)
}

func TestGamePacketMarshalLengthMismatch(t *testing.T) {
	p := &GamePacket{Type: PacketCallFunction, Flags: FlagExtended, ExtendedDataLength: 10, Extended: []byte{1}}
	_, err := p.Marshal()
	assert.Error(t, err)
}

func TestGamePacketOversizeRefused(t *testing.T) {
	p := (&GamePacket{Type: PacketSendMapData}).WithExtended(make([]byte, constants.MaxPacketSize))
	_, err := p.Marshal()
	assert.Error(t, err)
}

func TestEncodeDecodeMessage(t *testing.T) {
	raw, err := EncodeMessage(MessageGamePacket, []byte{1, 2, 3})
	require.NoError(t, err)

	kind, body, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageGamePacket, kind)
	assert.Equal(t, []byte{1, 2, 3}, body)
}

func TestEncodeTextMessageNulTerminated(t *testing.T) {
	raw, err := EncodeTextMessage(MessageGenericText, "action|enter_game")
	require.NoError(t, err)

	assert.Equal(t, uint32(MessageGenericText), binary.LittleEndian.Uint32(raw))
	assert.Equal(t, byte(0), raw[len(raw)-1])
	_, body, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "action|enter_game", DecodeText(body))
}

func TestDecodeMessageTooShort(t *testing.T) {
	_, _, err := DecodeMessage([]byte{1, 2})
	assert.Error(t, err)
}

func TestPacketTypeNames(t *testing.T) {
	assert.Equal(t, "STATE", PacketState.String())
	assert.Equal(t, "PING_REQUEST", PacketPingRequest.String())
	assert.Equal(t, "ON_STEP_TILE_MOD", PacketOnStepTileMod.String())
	assert.Equal(t, "UNKNOWN", PacketType(200).String())
}
