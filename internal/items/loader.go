package items

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"

	"github.com/nrevox/growfleet/internal/constants"
	"github.com/nrevox/growfleet/internal/crypto"
)

// Loader parses the raw items.dat format. The format itself is owned by an
// external component; the runtime only needs the decoded entries.
type Loader interface {
	Load(data []byte) (version uint16, items []Item, err error)
}

// ItemsDatFile is where the decompressed catalog is persisted for the
// external loader and for debugging. Observational; correctness does not
// depend on it.
const ItemsDatFile = "items.dat"

// IngestPacket decompresses a SendItemDatabaseData payload, persists it,
// parses it through loader, and swaps the catalog contents. Returns the
// number of entries loaded.
func (c *Catalog) IngestPacket(compressed []byte, loader Loader) (int, error) {
	raw, err := decompress(compressed)
	if err != nil {
		return 0, fmt.Errorf("decompressing item database: %w", err)
	}

	if err := os.WriteFile(ItemsDatFile, raw, 0o644); err != nil {
		// Best effort: the in-memory catalog is what matters.
		fmt.Fprintf(os.Stderr, "warning: writing %s: %v\n", ItemsDatFile, err)
	}

	version, entries, err := loader.Load(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing item database: %w", err)
	}

	c.Replace(entries, version, crypto.Hash(raw))
	return len(entries), nil
}

// IngestFile loads a previously persisted items.dat from disk.
func (c *Catalog) IngestFile(path string, loader Loader) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	version, entries, err := loader.Load(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	c.Replace(entries, version, crypto.Hash(raw))
	return len(entries), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	// The catalog file is a few MB; cap well above that.
	const limit = 64 << 20
	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, fmt.Errorf("decompressed catalog exceeds %d bytes", limit)
	}
	if len(out) < constants.MessageKindSize {
		return nil, fmt.Errorf("decompressed catalog implausibly small: %d bytes", len(out))
	}
	return out, nil
}
