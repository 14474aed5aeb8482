package merkle

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeyxx/CYNIC-sub012/jsonx"
)

// EmptyTreePlaceholder is hashed in place of leaves when a root is requested
// for an empty set, so the empty root is a fixed, recognizable value.
const EmptyTreePlaceholder = "CYNIC_EMPTY_TREE"

// HashHex returns the hex sha256 digest of data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex sha256 digest of s.
func HashString(s string) string {
	return HashHex([]byte(s))
}

// HashJSON hashes the canonical JSON encoding of v.
func HashJSON(v interface{}) (string, error) {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return "", err
	}
	return HashHex(data), nil
}

// Root computes the merkle root of an ordered leaf-hash set: adjacent pairs
// are concatenated and hashed left-to-right, the last hash is duplicated when
// a level is odd, until a single hash remains. A single leaf is returned
// unchanged; the empty set maps to the hash of EmptyTreePlaceholder.
func Root(hashes []string) string {
	if len(hashes) == 0 {
		return HashString(EmptyTreePlaceholder)
	}
	level := make([]string, len(hashes))
	copy(level, hashes)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, HashString(level[i]+level[i+1]))
		}
		level = next
	}
	return level[0]
}
