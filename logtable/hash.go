// Package logtable maps firmware log hashes back to their message templates.
//
// The device never sends log text. Each log call site is identified by the
// FNV-1a 64 hash of its format string, and the host resolves the hash
// through a JSON artifact produced from the firmware sources by the
// extraction tool (see Extractor).
package logtable

import "strconv"

const (
	fnvOffset64 uint64 = 0xcbf29ce484222325
	fnvPrime64  uint64 = 0x100000001b3
)

// FNV1a64 hashes the UTF-8 bytes of s. It must match the firmware's
// compile-time FNV1A_64.
func FNV1a64(s string) uint64 {
	hash := fnvOffset64
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= fnvPrime64
	}
	return hash
}

// Key returns the artifact key for hash: its decimal string form.
func Key(hash uint64) string {
	return strconv.FormatUint(hash, 10)
}
