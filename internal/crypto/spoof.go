package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Fingerprint is the per-session spoofed device identity sent in the
// credential blob. Regenerated once per login preamble; stable across a
// redirect within the same session.
type Fingerprint struct {
	RID     string // 32 uppercase hex digits
	WK      string // 32 uppercase hex digits
	MAC     string // colon-separated lowercase hex pairs
	MACHash uint32 // accumulator hash of MAC+"RT"
	RIDHash uint32 // accumulator hash of RID+"RT"
}

// NewFingerprint generates a fresh device identity.
func NewFingerprint() (*Fingerprint, error) {
	mac, err := randomMAC()
	if err != nil {
		return nil, fmt.Errorf("generating mac: %w", err)
	}

	fp := &Fingerprint{
		RID: hexToken(),
		WK:  hexToken(),
		MAC: mac,
	}
	fp.MACHash = HashString(fp.MAC + "RT")
	fp.RIDHash = HashString(fp.RID + "RT")
	return fp, nil
}

// hexToken returns 32 uppercase hex digits backed by a random UUID.
func hexToken() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

// randomMAC builds a locally-administered unicast MAC address.
func randomMAC() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	b[0] = 0x02

	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = fmt.Sprintf("%02x", octet)
	}
	return strings.Join(parts, ":"), nil
}
