package backend

import (
	"context"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMembed Implementation = "membed"
)

// Feature represents backend features as bit flags
type Feature uint64

const (
	FeatureGet        Feature = 1 << iota // Support for Get operations
	FeatureSet                            // Support for Set operations
	FeatureRemove                         // Support for Remove operations
	FeatureGetAllKeys                     // Support for GetAllKeys operations
	FeatureSave                           // Support for Save operations
	FeatureLoad                           // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeatureSet:
		return "Set"
	case FeatureRemove:
		return "Remove"
	case FeatureGetAllKeys:
		return "GetAllKeys"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type BackendInfo struct {
	KeyCount          int            `json:"key_count"`
	BackendType       Implementation `json:"backend_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// Factory is a function type that creates a new backend used by the store.
// This is used to abstract the creation of the backend from the store
// implementation.
type Factory func() IBackend

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// IBackend is the interface for the durable key-value collaborator the
// reactive store persists into. All operations are asynchronous from the
// store's point of view: implementations may take arbitrarily long and the
// store must not assume synchronous completion. Every blocking operation
// therefore takes a context.
//
// Implementations must be safe for concurrent use. The store guarantees it
// never issues two concurrent writes for the same key (per-key write
// queues), but reads and writes for different keys overlap freely.
type IBackend interface {

	// --------------------------------------------------------------------------
	// Read Operations
	// --------------------------------------------------------------------------

	// Get retrieves the stored bytes for a key.
	// The boolean return value indicates whether a value for the key was found.
	Get(ctx context.Context, key string) (value []byte, loaded bool, err error)

	// GetAllKeys returns every key currently present in the backend.
	GetAllKeys(ctx context.Context) (keys []string, err error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry. If the key already exists the old
	// value is overwritten.
	Set(ctx context.Context, key string, value []byte) (err error)

	// Remove deletes an entry. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) (err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the backend to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the backend state from data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the backend implementation supports the
	// specified feature. Multiple features can be checked at once using the
	// bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the backend.
	GetInfo() (info BackendInfo)

	// Close releases all resources held by the backend.
	Close() (err error)
}
