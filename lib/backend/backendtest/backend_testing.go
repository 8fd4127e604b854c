package backendtest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/reactive-kv/rkv/lib/backend"
)

// Factory is a function that creates a new instance of an IBackend
// implementation under test.
type Factory func() backend.IBackend

// RunBackendTests runs a conformance test suite for an IBackend
// implementation.
func RunBackendTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory())
		})

		t.Run("GetAllKeys", func(t *testing.T) {
			testGetAllKeys(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("ValueIsolation", func(t *testing.T) {
			testValueIsolation(t, factory())
		})

		t.Run("ContextCancellation", func(t *testing.T) {
			testContextCancellation(t, factory())
		})

		t.Run("ConcurrentAccess", func(t *testing.T) {
			testConcurrentAccess(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireFeature skips the test if the backend does not support the feature
func requireFeature(t testing.TB, b backend.IBackend, feature backend.Feature) {
	if !b.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, b backend.IBackend) {
	requireFeature(t, b, backend.FeatureSet|backend.FeatureGet)
	ctx := context.Background()

	if _, ok, err := b.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss for unknown key, got ok=%v err=%v", ok, err)
	}

	if err := b.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := b.Get(ctx, "k1")
	if err != nil || !ok || !bytes.Equal(value, []byte("v1")) {
		t.Fatalf("Get returned (%q, %v, %v), want (v1, true, nil)", value, ok, err)
	}

	// Overwrite
	if err := b.Set(ctx, "k1", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	value, _, _ = b.Get(ctx, "k1")
	if !bytes.Equal(value, []byte("v2")) {
		t.Fatalf("expected overwritten value v2, got %q", value)
	}
}

func testRemove(t *testing.T, b backend.IBackend) {
	requireFeature(t, b, backend.FeatureSet|backend.FeatureRemove)
	ctx := context.Background()

	if err := b.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Remove(ctx, "k1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k1"); ok {
		t.Fatal("key still present after Remove")
	}

	// Removing an absent key is a no-op
	if err := b.Remove(ctx, "k1"); err != nil {
		t.Fatalf("Remove of absent key returned error: %v", err)
	}
}

func testGetAllKeys(t *testing.T, b backend.IBackend) {
	requireFeature(t, b, backend.FeatureSet|backend.FeatureGetAllKeys)
	ctx := context.Background()

	want := []string{"a", "b", "collection_1", "collection_2"}
	for _, k := range want {
		if err := b.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	keys, err := b.GetAllKeys(ctx)
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d (%v)", len(want), len(keys), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected keys %v, got %v", want, keys)
		}
	}
}

func testSaveLoad(t *testing.T, factory Factory) {
	src := factory()
	requireFeature(t, src, backend.FeatureSave|backend.FeatureLoad)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		if err := src.Set(ctx, key, []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	dst := factory()
	if err := dst.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		value, ok, err := dst.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("key %s missing after Load (ok=%v err=%v)", key, ok, err)
		}
		if want := fmt.Sprintf("value-%d", i); string(value) != want {
			t.Fatalf("key %s: got %q, want %q", key, value, want)
		}
	}
}

func testValueIsolation(t *testing.T, b backend.IBackend) {
	requireFeature(t, b, backend.FeatureSet|backend.FeatureGet)
	ctx := context.Background()

	original := []byte("immutable")
	if err := b.Set(ctx, "k1", original); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Mutating the slice we passed in must not affect the stored value
	original[0] = 'X'

	value, _, _ := b.Get(ctx, "k1")
	if !bytes.Equal(value, []byte("immutable")) {
		t.Fatalf("stored value was corrupted by caller-side mutation: %q", value)
	}

	// Mutating a returned slice must not affect the stored value either
	value[0] = 'Y'
	again, _, _ := b.Get(ctx, "k1")
	if !bytes.Equal(again, []byte("immutable")) {
		t.Fatalf("stored value was corrupted through returned slice: %q", again)
	}
}

func testContextCancellation(t *testing.T, b backend.IBackend) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Set(ctx, "k1", []byte("v1")); err == nil {
		t.Fatal("Set with cancelled context should fail")
	}
	if _, _, err := b.Get(ctx, "k1"); err == nil {
		t.Fatal("Get with cancelled context should fail")
	}
}

func testConcurrentAccess(t *testing.T, b backend.IBackend) {
	requireFeature(t, b, backend.FeatureSet|backend.FeatureGet)
	ctx := context.Background()

	const (
		workers = 8
		keys    = 100
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := b.Set(ctx, key, []byte(key)); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				if value, ok, err := b.Get(ctx, key); err != nil || !ok || string(value) != key {
					t.Errorf("Get(%s) returned (%q, %v, %v)", key, value, ok, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	allKeys, err := b.GetAllKeys(ctx)
	if err != nil {
		t.Fatalf("GetAllKeys failed: %v", err)
	}
	if len(allKeys) != workers*keys {
		t.Fatalf("expected %d keys, got %d", workers*keys, len(allKeys))
	}
}
