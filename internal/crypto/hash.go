package crypto

// HashSeed is the initial accumulator value.
const HashSeed = 0x55555555

// Hash computes the 32-bit accumulator hash the protocol uses for file
// checksums and ping-reply identities:
//
//	h(0) = 0x55555555
//	h(i) = (h(i-1) >> 27) + (h(i-1) << 5) + byte_i   (wrapping)
//
// Empty input yields 0, matching the remote's treatment of missing data.
func Hash(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	h := uint32(HashSeed)
	for _, b := range data {
		h = (h >> 27) + (h << 5) + uint32(b)
	}
	return h
}

// HashString is Hash over the UTF-8 bytes of s.
func HashString(s string) uint32 {
	return Hash([]byte(s))
}
