package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantListRoundTrip(t *testing.T) {
	v := NewVariantList()
	v.SetString(0, "OnSpawn")
	v.SetString(1, "netID|7\nuserID|7")
	v.SetFloat(2, 3.5)
	v.SetVec2(3, 32, 64)
	v.SetVec3(4, 1, 2, 3)
	v.SetUint(5, 0xDEADBEEF)
	v.SetInt(6, -12)

	got, err := UnmarshalVariantList(v.Marshal())
	require.NoError(t, err)

	assert.Equal(t, 7, got.Len())
	assert.Equal(t, "OnSpawn", got.Function())
	assert.Equal(t, "netID|7\nuserID|7", got.String(1))
	assert.Equal(t, float32(3.5), got.Float(2))
	x, y := got.Vec2(3)
	assert.Equal(t, float32(32), x)
	assert.Equal(t, float32(64), y)
	x, y, z := got.Vec3(4)
	assert.Equal(t, [3]float32{1, 2, 3}, [3]float32{x, y, z})
	assert.Equal(t, uint32(0xDEADBEEF), got.Uint(5))
	assert.Equal(t, int32(-12), got.Int(6))
}

func TestVariantAccessorsCoerceToZero(t *testing.T) {
	v := NewVariantList()
	v.SetString(0, "OnConsoleMessage")
	v.SetUint(1, 99)

	// Wrong type reads return the zero of the requested primitive.
	assert.Equal(t, float32(0), v.Float(0))
	assert.Equal(t, uint32(0), v.Uint(0))
	assert.Equal(t, "", v.String(1))
	assert.Equal(t, int32(0), v.Int(1))

	// Absent slots too.
	assert.Equal(t, "", v.String(9))
	x, y := v.Vec2(9)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestVariantListUnknownTag(t *testing.T) {
	_, err := UnmarshalVariantList([]byte{1, 0, 7, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestVariantListShortRead(t *testing.T) {
	v := NewVariantList()
	v.SetString(0, "OnTextOverlay")
	raw := v.Marshal()

	_, err := UnmarshalVariantList(raw[:len(raw)-3])
	assert.Error(t, err)
}

func TestVariantListEmpty(t *testing.T) {
	got, err := UnmarshalVariantList([]byte{0})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestTextBlobRoundTrip(t *testing.T) {
	b := NewTextBlob()
	b.Set("protocol", "216")
	b.Set("ltoken", "abc|def")
	b.Set("platformID", "0")

	parsed := ParseTextBlob(b.String())
	assert.Equal(t, 3, parsed.Len())
	assert.Equal(t, "216", parsed.Get("protocol"))
	// Value keeps its embedded separator.
	assert.Equal(t, "abc|def", parsed.Get("ltoken"))
	assert.True(t, parsed.Has("platformID"))
	assert.False(t, parsed.Has("password"))
}

func TestTextBlobSkipsMalformedLines(t *testing.T) {
	parsed := ParseTextBlob("noseparator\n\nkey|value\r\n|empty")
	assert.Equal(t, 1, parsed.Len())
	assert.Equal(t, "value", parsed.Get("key"))
}
