package world

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nrevox/growfleet/internal/protocol"
)

// ParseSpawnBlob builds a Player from an OnSpawn text blob. The blob is
// key|value per line; posXY packs both coordinates into one value. Returns
// the player and whether the spawn announces the local avatar itself
// (type|local).
func ParseSpawnBlob(text string) (*Player, bool, error) {
	blob := protocol.ParseTextBlob(text)

	netID, err := parseUint(blob.Get("netID"))
	if err != nil {
		return nil, false, fmt.Errorf("spawn netID: %w", err)
	}

	p := &Player{
		NetID:   netID,
		Name:    strings.Trim(blob.Get("name"), "`"),
		Country: blob.Get("country"),
	}
	if p.UserID, err = parseUint(blob.Get("userID")); err != nil {
		p.UserID = 0
	}
	p.Invisible = blob.Get("invis") == "1"
	p.Moderator = blob.Get("mstate") == "1"

	if pos := blob.Get("posXY"); pos != "" {
		xs, ys, ok := strings.Cut(pos, "|")
		if !ok {
			return nil, false, fmt.Errorf("spawn posXY %q: missing separator", pos)
		}
		x, errX := strconv.ParseFloat(xs, 32)
		y, errY := strconv.ParseFloat(ys, 32)
		if errX != nil || errY != nil {
			return nil, false, fmt.Errorf("spawn posXY %q: not numeric", pos)
		}
		p.X = float32(x)
		p.Y = float32(y)
	}

	return p, blob.Get("type") == "local", nil
}

// ParseRemoveBlob extracts the net id from an OnRemove text blob.
func ParseRemoveBlob(text string) (uint32, error) {
	blob := protocol.ParseTextBlob(text)
	netID, err := parseUint(blob.Get("netID"))
	if err != nil {
		return 0, fmt.Errorf("remove netID: %w", err)
	}
	return netID, nil
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
