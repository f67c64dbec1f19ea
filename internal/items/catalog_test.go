package items

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrevox/growfleet/internal/crypto"
)

// stubLoader decodes the toy format used by these tests: a u16 count, then
// {u32 id, u8 action, u8 collision} per entry.
type stubLoader struct{}

func (stubLoader) Load(data []byte) (uint16, []Item, error) {
	count := binary.LittleEndian.Uint16(data)
	items := make([]Item, 0, count)
	off := 2
	for n := 0; n < int(count); n++ {
		items = append(items, Item{
			ID:            binary.LittleEndian.Uint32(data[off:]),
			ActionType:    data[off+4],
			CollisionType: data[off+5],
		})
		off += 6
	}
	return 1, items, nil
}

func encodeStubItems(items []Item) []byte {
	buf := binary.LittleEndian.AppendUint16(nil, uint16(len(items)))
	for _, it := range items {
		buf = binary.LittleEndian.AppendUint32(buf, it.ID)
		buf = append(buf, it.ActionType, it.CollisionType)
	}
	return buf
}

func TestCatalogReplaceAndGet(t *testing.T) {
	c := NewCatalog()
	c.Replace([]Item{
		{ID: 2, Name: "Dirt", CollisionType: CollisionSolid},
		{ID: 11, Name: "Door", CollisionType: CollisionDoor},
	}, 3, 0xABCD)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint16(3), c.Version())
	assert.Equal(t, uint32(0xABCD), c.Hash())

	it, ok := c.Get(2)
	require.True(t, ok)
	assert.Equal(t, "Dirt", it.Name)

	assert.Equal(t, uint8(CollisionSolid), c.CollisionType(2))
	assert.Equal(t, uint8(CollisionDoor), c.CollisionType(11))
	// Unknown items are passable.
	assert.Equal(t, uint8(CollisionNone), c.CollisionType(9999))
}

func TestIngestPacket(t *testing.T) {
	wd, _ := os.Getwd()
	tmp := t.TempDir()
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { os.Chdir(wd) })

	raw := encodeStubItems([]Item{
		{ID: 2, ActionType: 0, CollisionType: CollisionSolid},
		{ID: 3, ActionType: 0, CollisionType: CollisionNone},
		{ID: 8, ActionType: 18, CollisionType: CollisionNone},
	})

	var packed bytes.Buffer
	zw := zlib.NewWriter(&packed)
	zw.Write(raw)
	require.NoError(t, zw.Close())

	c := NewCatalog()
	n, err := c.IngestPacket(packed.Bytes(), stubLoader{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, crypto.Hash(raw), c.Hash())
	assert.Equal(t, uint8(18), c.ActionType(8))

	// The decompressed file is persisted for the external loader.
	persisted, err := os.ReadFile(filepath.Join(tmp, ItemsDatFile))
	require.NoError(t, err)
	assert.Equal(t, raw, persisted)
}

func TestIngestPacketBadStream(t *testing.T) {
	c := NewCatalog()
	_, err := c.IngestPacket([]byte{0xDE, 0xAD}, stubLoader{})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestSeedParity(t *testing.T) {
	assert.False(t, Item{ID: 2}.Seed())
	assert.True(t, Item{ID: 3}.Seed())
}
