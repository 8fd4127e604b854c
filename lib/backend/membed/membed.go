package membed

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/reactive-kv/rkv/lib/backend"
	"github.com/reactive-kv/rkv/lib/backend/membed/internal"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for the snapshot file format
const (
	magicNum      = "MEMBED\x00\x00" // File format identifier
	membedVersion = 1                // Snapshot format version
)

// --------------------------------------------------------------------------
// Core membed backend structure
// --------------------------------------------------------------------------

// membedImpl implements an in-memory backend with sharded data
type membedImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	loadMu    sync.RWMutex      // Guards shard replacement during Load
}

// Options configures the membed backend during initialization
type Options struct {
	NumShards int // Number of shards (0 = auto, based on CPU count)
}

// DefaultOptions returns the default membed options
func DefaultOptions() *Options {
	return &Options{
		NumShards: runtime.NumCPU(),
	}
}

// NewMembedBackend creates a new membed backend instance with the specified
// options (optional).
//
// Thread-safety: This function is not thread-safe and should only be called
// once during initialization.
func NewMembedBackend(opts *Options) backend.IBackend {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards < 1 {
		opts.NumShards = runtime.NumCPU()
	}

	shards := make([]*internal.Shard, opts.NumShards)
	for i := 0; i < opts.NumShards; i++ {
		shards[i] = internal.NewShard()
	}

	return &membedImpl{
		numShards: opts.NumShards,
		seed:      internal.GenerateSeed(),
		shards:    shards,
	}
}

// shardFor returns the shard responsible for the given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *membedImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(internal.HashString(key, m.seed), m.shards)
}

// --------------------------------------------------------------------------
// Core IBackend Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves the stored bytes for a key.
// The returned value is a copy of the stored data and therefore safe to
// use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *membedImpl) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.loadMu.RLock()
	defer m.loadMu.RUnlock()

	value, ok := m.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false, nil
	}

	// Copy to prevent callers from mutating stored data
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// GetAllKeys returns every key currently present in the backend.
//
// Thread-safety: This method is thread-safe. Keys written concurrently with
// the call may or may not appear in the result.
func (m *membedImpl) GetAllKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.loadMu.RLock()
	defer m.loadMu.RUnlock()

	var keys []string
	for _, shard := range m.shards {
		shard.Data.Range(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
	}
	return keys, nil
}

// --------------------------------------------------------------------------
// Core IBackend Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry. The value is copied before storing to
// prevent memory corruption through caller-side mutation.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *membedImpl) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.loadMu.RLock()
	defer m.loadMu.RUnlock()

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	m.shardFor(key).Data.Store(key, valueCopy)
	return nil
}

// Remove deletes an entry. Removing an absent key is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *membedImpl) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.loadMu.RLock()
	defer m.loadMu.RUnlock()

	m.shardFor(key).Data.Delete(key)
	return nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the backend to the writer.
// Concurrent reading and writing is allowed during a Save operation; the
// snapshot reflects some consistent interleaving of concurrent writes.
//
// Thread-safety: This function allows concurrent operations with all other
// functions except Load.
func (m *membedImpl) Save(w io.Writer) error {
	m.loadMu.RLock()
	defer m.loadMu.RUnlock()

	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key   string
		value []byte
	}

	var entries []entryToSave
	for _, shard := range m.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			valueCopy := make([]byte, len(value))
			copy(valueCopy, value)
			entries = append(entries, entryToSave{key, valueCopy})
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write format version
	if err := binary.Write(bw, binary.LittleEndian, uint8(membedVersion)); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, item := range entries {
		// Write key length and key bytes
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}

		// Write value length and value bytes
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load restores the backend from the reader, replacing all current data.
//
// Thread-safety: Load blocks all other operations until it completes.
func (m *membedImpl) Load(r io.Reader) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != membedVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, membedVersion)
	}

	// Recreate empty shards
	shards := make([]*internal.Shard, m.numShards)
	for i := 0; i < m.numShards; i++ {
		shards[i] = internal.NewShard()
	}
	m.shards = shards

	// Read entry count
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	for i := uint64(0); i < count; i++ {
		// Read key
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(br, keyBytes); err != nil {
			return err
		}
		key := string(keyBytes)

		// Read value
		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		m.shardFor(key).Data.Store(key, value)
	}

	return nil
}

// --------------------------------------------------------------------------
// IBackend Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the backend
func (m *membedImpl) GetInfo() backend.BackendInfo {
	m.loadMu.RLock()
	defer m.loadMu.RUnlock()

	keyCount := 0
	shardSizes := make([]int, len(m.shards))
	for i, shard := range m.shards {
		shardSizes[i] = shard.Data.Size()
		keyCount += shardSizes[i]
	}

	// Metadata stays a plain map so every configured codec can encode it
	meta := map[string]interface{}{
		"shard_count": len(m.shards),
		"shard_sizes": shardSizes,
	}

	return backend.BackendInfo{
		KeyCount:    keyCount,
		BackendType: backend.ImplMembed,
		SupportedFeatures: []backend.Feature{
			backend.FeatureGet, backend.FeatureSet,
			backend.FeatureRemove, backend.FeatureGetAllKeys,
			backend.FeatureSave, backend.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (m *membedImpl) SupportsFeature(feature backend.Feature) bool {
	supported := backend.FeatureGet |
		backend.FeatureSet |
		backend.FeatureRemove |
		backend.FeatureGetAllKeys |
		backend.FeatureSave |
		backend.FeatureLoad
	return supported&feature == feature
}

// Close releases resources. The membed backend holds no external resources.
func (m *membedImpl) Close() error {
	return nil
}
