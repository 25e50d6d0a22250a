package util

import "github.com/OneOfOne/xxhash"

// HashCode hashes an arbitrary byte key with xxhash64, used wherever a
// component needs to shard or partition by key: the adaptive hash
// index's partition selection, the buffer pool's segment selection,
// and change-buffer page-key bucketing.
func HashCode(key []byte) uint64 {
	h := xxhash.New64()
	h.Write(key)
	return h.Sum64()
}

// HashString is a convenience wrapper over HashCode for string keys.
func HashString(key string) uint64 {
	return HashCode([]byte(key))
}
