package partition

import "github.com/twmb/murmur3"

// Hash maps a partition key to an unsigned integer.
//
// Hash functions must be deterministic across process restarts,
// so that Events of the same key keep landing on the same partition.
type Hash func(key string) uint64

// Murmur3 is the default Hash, using the 64-bit variant of Murmur3.
func Murmur3(key string) uint64 {
	return murmur3.Sum64([]byte(key))
}
