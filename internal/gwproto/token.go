package gwproto

import "math/rand/v2"

// NewToken draws a random 16-bit transaction token. Spec §9 calls for a
// well-seeded PRNG rather than a predictable counter, since tokens are the
// only correlation key between a gateway request and its ack; math/rand/v2's
// default source is seeded from the OS entropy pool at program start.
func NewToken() uint16 {
	return uint16(rand.N(uint32(1) << 16))
}
