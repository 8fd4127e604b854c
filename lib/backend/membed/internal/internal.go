package internal

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the backend)
// --------------------------------------------------------------------------

// Shard represents one partition of the backend. Each shard owns an
// independent concurrent map, so writes to different shards never contend.
type Shard struct {
	Data *xsync.MapOf[string, []byte]
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, []byte](),
	}
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func GetShard(hash uint64, shards []*Shard) *Shard {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shifted := hash >> 7
	return shards[shifted%uint64(len(shards))]
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// last-resort fallback
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// HashString generates a hash value for a string with a seed.
// This uses the FNV-1a hash algorithm, which is fast and has good distribution.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed

	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return hash
}
