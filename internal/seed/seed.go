package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// Separator joins the stringified parts before hashing.
const Separator = "||"

// Derive maps the given parts to a stable 32-bit seed.
//
// The parts are stringified with fmt.Sprint, joined with Separator and hashed
// with SHA-256. The first four digest bytes, read big-endian, form the seed,
// which is the same value as the first eight hex characters of the digest.
func Derive(parts ...any) uint32 {
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		values = append(values, fmt.Sprint(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(values, Separator)))
	return binary.BigEndian.Uint32(sum[:4])
}
