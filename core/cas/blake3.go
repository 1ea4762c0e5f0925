package cas

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestStrings hashes an ordered list of strings. Each part is
// length-prefixed, so ["ab","c"] and ["a","bc"] differ.
func DigestStrings(parts ...string) string {
	h := blake3.New()
	var prefix [binary.MaxVarintLen64]byte
	for _, p := range parts {
		n := binary.PutUvarint(prefix[:], uint64(len(p)))
		h.Write(prefix[:n])
		h.WriteString(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidDigest reports whether s is a lowercase 64-character hex digest.
func ValidDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
