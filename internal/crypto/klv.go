package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// Fixed KLV salts. The remote validates the klv field of the credential
// blob against the same derivation, so these must match byte for byte.
var klvSalts = [4]string{
	"e9fc40ec08f9ea6393f59c65e37f750aacddf68490c4f92d0d2523a5bc02ea63",
	"c85df9056ee64d849844dd7fd1c115f74e09e2cd96bf284c9dab0b606784a2ef",
	"3ca913fc4e754adaa104586c7f29b95cb33c71a38b1fdfe8abbe1a16c6064fff",
	"73eff5914c61a20a71ada81a02ad2e2ebca3a7e4d2cfa7ecbf1e7ea3d3c52e7b",
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// KLV derives the handshake check value from the protocol revision, the
// client version string, and the spoofed request id:
//
//	sha256(H1 ‖ S0 ‖ H2 ‖ S1 ‖ H3 ‖ S2 ‖ H4)
//
// with H1 = sha256(md5(sha256(protocol))), H2 = sha256(sha256(version)),
// H3 = sha256(md5(sha256(rid))), H4 = sha256(sha256(protocol) ‖ S3),
// all rendered as lowercase hex between stages.
func KLV(protocol, version, rid string) string {
	h1 := sha256Hex(md5Hex(sha256Hex(protocol)))
	h2 := sha256Hex(sha256Hex(version))
	h3 := sha256Hex(md5Hex(sha256Hex(rid)))
	h4 := sha256Hex(sha256Hex(protocol) + klvSalts[3])

	return sha256Hex(h1 + klvSalts[0] + h2 + klvSalts[1] + h3 + klvSalts[2] + h4)
}
