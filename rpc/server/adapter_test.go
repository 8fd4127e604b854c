package server

import (
	"sync"
	"testing"

	"github.com/reactive-kv/rkv/lib/backend"
	"github.com/reactive-kv/rkv/lib/backend/membed"
	"github.com/reactive-kv/rkv/lib/serializer"
	"github.com/reactive-kv/rkv/lib/store"
	"github.com/reactive-kv/rkv/lib/store/rstore"
	"github.com/reactive-kv/rkv/rpc/common"
	"github.com/reactive-kv/rkv/rpc/transport"
)

// fakeConn is a pushable server connection that records events
type fakeConn struct {
	mu       sync.Mutex
	pushes   []pushedEvent
	closeFns []func()
	canPush  bool
}

type pushedEvent struct {
	watchID uint64
	payload []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{canPush: true}
}

func (c *fakeConn) CanPush() bool { return c.canPush }

func (c *fakeConn) Push(watchID uint64, event []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload := make([]byte, len(event))
	copy(payload, event)
	c.pushes = append(c.pushes, pushedEvent{watchID: watchID, payload: payload})
	return nil
}

func (c *fakeConn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFns = append(c.closeFns, fn)
}

func (c *fakeConn) close() {
	c.mu.Lock()
	fns := c.closeFns
	c.closeFns = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeConn) events(t *testing.T, codec serializer.ISerializer) []common.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []common.Message
	for _, p := range c.pushes {
		var msg common.Message
		if err := codec.Deserialize(p.payload, &msg); err != nil {
			t.Fatalf("failed to decode pushed event: %v", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

var _ transport.IServerConn = (*fakeConn)(nil)

// --------------------------------------------------------------------------
// Test Setup
// --------------------------------------------------------------------------

func newTestAdapter(t *testing.T) (IRPCServerAdapter, store.IStore, serializer.ISerializer) {
	t.Helper()
	codec := serializer.NewJSONSerializer()
	s := rstore.NewReactiveStore(
		func() backend.IBackend { return membed.NewMembedBackend(membed.DefaultOptions()) },
		&rstore.Options{
			Collections: []string{"test_"},
			Serializer:  codec,
		},
	)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return NewIStoreServerAdapter(codec), s, codec
}

func encode(t *testing.T, codec serializer.ISerializer, v interface{}) []byte {
	t.Helper()
	raw, err := codec.Serialize(v)
	if err != nil {
		t.Fatalf("failed to encode value: %v", err)
	}
	return raw
}

func decode(t *testing.T, codec serializer.ISerializer, raw []byte) interface{} {
	t.Helper()
	if len(raw) == 0 {
		return nil
	}
	var value interface{}
	if err := codec.Deserialize(raw, &value); err != nil {
		t.Fatalf("failed to decode value: %v", err)
	}
	return value
}

// --------------------------------------------------------------------------
// Request/Response Operations
// --------------------------------------------------------------------------

func TestAdapterSetAndGet(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	resp := adapter.Handle(conn, 1, common.NewSetRequest("greeting", encode(t, codec, "hello")), s)
	if resp.Err != "" {
		t.Fatalf("set failed: %s", resp.Err)
	}

	resp = adapter.Handle(conn, 2, common.NewGetRequest("greeting"), s)
	if resp.Err != "" {
		t.Fatalf("get failed: %s", resp.Err)
	}
	if !resp.Ok {
		t.Fatal("expected value to be found")
	}
	if got := decode(t, codec, resp.Value); got != "hello" {
		t.Errorf("expected %q, got %v", "hello", got)
	}
}

func TestAdapterGetAbsentKey(t *testing.T) {
	adapter, s, _ := newTestAdapter(t)
	conn := newFakeConn()

	resp := adapter.Handle(conn, 1, common.NewGetRequest("missing"), s)
	if resp.Err != "" {
		t.Fatalf("get failed: %s", resp.Err)
	}
	if resp.Ok {
		t.Error("expected Ok=false for absent key")
	}
}

func TestAdapterMerge(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	adapter.Handle(conn, 1, common.NewSetRequest("obj", encode(t, codec, map[string]interface{}{"a": "one"})), s)
	resp := adapter.Handle(conn, 2, common.NewMergeRequest("obj", encode(t, codec, map[string]interface{}{"b": "two"})), s)
	if resp.Err != "" {
		t.Fatalf("merge failed: %s", resp.Err)
	}

	resp = adapter.Handle(conn, 3, common.NewGetRequest("obj"), s)
	obj, ok := decode(t, codec, resp.Value).(map[string]interface{})
	if !ok {
		t.Fatalf("expected object, got %T", decode(t, codec, resp.Value))
	}
	if obj["a"] != "one" || obj["b"] != "two" {
		t.Errorf("unexpected merged value: %v", obj)
	}
}

func TestAdapterMergeCollection(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	req := common.NewMergeCollectionRequest("test_", map[string][]byte{
		"test_1": encode(t, codec, map[string]interface{}{"a": "one"}),
		"test_2": encode(t, codec, map[string]interface{}{"b": "two"}),
	})
	resp := adapter.Handle(conn, 1, req, s)
	if resp.Err != "" {
		t.Fatalf("mergeCollection failed: %s", resp.Err)
	}

	resp = adapter.Handle(conn, 2, common.NewGetAllKeysRequest(), s)
	if len(resp.Keys) != 2 {
		t.Errorf("expected 2 keys, got %v", resp.Keys)
	}
}

func TestAdapterClear(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	adapter.Handle(conn, 1, common.NewSetRequest("a", encode(t, codec, "one")), s)
	resp := adapter.Handle(conn, 2, common.NewClearRequest(), s)
	if resp.Err != "" {
		t.Fatalf("clear failed: %s", resp.Err)
	}

	resp = adapter.Handle(conn, 3, common.NewGetAllKeysRequest(), s)
	if len(resp.Keys) != 0 {
		t.Errorf("expected no keys after clear, got %v", resp.Keys)
	}
}

func TestAdapterInfo(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	resp := adapter.Handle(conn, 1, common.NewInfoRequest(), s)
	if resp.Err != "" {
		t.Fatalf("info failed: %s", resp.Err)
	}

	var info backend.BackendInfo
	if err := codec.Deserialize(resp.Meta, &info); err != nil {
		t.Fatalf("failed to decode backend info: %v", err)
	}
	if info.BackendType != backend.ImplMembed {
		t.Errorf("unexpected backend type: %v", info.BackendType)
	}
}

func TestAdapterUnsupportedType(t *testing.T) {
	adapter, s, _ := newTestAdapter(t)
	conn := newFakeConn()

	resp := adapter.Handle(conn, 1, &common.Message{MsgType: common.MsgTUnknown}, s)
	if resp.MsgType != common.MsgTError {
		t.Errorf("expected error response, got %s", resp.MsgType)
	}
}

// --------------------------------------------------------------------------
// Watch Lifecycle
// --------------------------------------------------------------------------

func TestWatchDeliversInitialAndChanges(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	resp := adapter.Handle(conn, 10, common.NewWatchRequest("greeting", "", false), s)
	if resp.Err != "" {
		t.Fatalf("watch failed: %s", resp.Err)
	}
	s.Settle()

	adapter.Handle(conn, 11, common.NewSetRequest("greeting", encode(t, codec, "hello")), s)
	s.Settle()

	events := conn.events(t, codec)
	if len(events) != 2 {
		t.Fatalf("expected 2 events (initial + change), got %d", len(events))
	}
	if events[0].Ok {
		t.Error("initial event for absent key should carry no value")
	}
	if got := decode(t, codec, events[1].Value); got != "hello" {
		t.Errorf("expected %q, got %v", "hello", got)
	}
	for _, p := range conn.pushes {
		if p.watchID != 10 {
			t.Errorf("event tagged with watch id %d, expected 10", p.watchID)
		}
	}
}

func TestWatchWithSelector(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	adapter.Handle(conn, 1, common.NewSetRequest("obj", encode(t, codec, map[string]interface{}{"a": "one", "b": "two"})), s)
	s.Settle()

	resp := adapter.Handle(conn, 2, common.NewWatchRequest("obj", "a", false), s)
	if resp.Err != "" {
		t.Fatalf("watch failed: %s", resp.Err)
	}
	s.Settle()

	// A change outside the selector must stay silent
	adapter.Handle(conn, 3, common.NewMergeRequest("obj", encode(t, codec, map[string]interface{}{"b": "three"})), s)
	s.Settle()

	events := conn.events(t, codec)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := decode(t, codec, events[0].Value); got != "one" {
		t.Errorf("expected %q, got %v", "one", got)
	}
}

func TestWatchWholeCollection(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	resp := adapter.Handle(conn, 1, common.NewWatchRequest("test_", "", true), s)
	if resp.Err != "" {
		t.Fatalf("watch failed: %s", resp.Err)
	}
	s.Settle()

	req := common.NewMergeCollectionRequest("test_", map[string][]byte{
		"test_1": encode(t, codec, map[string]interface{}{"a": "one"}),
	})
	adapter.Handle(conn, 2, req, s)
	s.Settle()

	events := conn.events(t, codec)
	if len(events) != 2 {
		t.Fatalf("expected 2 events (initial snapshot + batch), got %d", len(events))
	}
	if len(events[0].Members) != 0 {
		t.Errorf("initial snapshot should be empty, got %v", events[0].Members)
	}
	if len(events[1].Members) != 1 {
		t.Fatalf("expected 1 member in batch snapshot, got %d", len(events[1].Members))
	}
}

func TestUnwatchStopsEvents(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	adapter.Handle(conn, 5, common.NewWatchRequest("key", "", false), s)
	s.Settle()

	resp := adapter.Handle(conn, 6, common.NewUnwatchRequest(5), s)
	if resp.Err != "" {
		t.Fatalf("unwatch failed: %s", resp.Err)
	}

	adapter.Handle(conn, 7, common.NewSetRequest("key", encode(t, codec, "value")), s)
	s.Settle()

	events := conn.events(t, codec)
	if len(events) != 1 {
		t.Errorf("expected only the initial event, got %d", len(events))
	}
}

func TestConnectionCloseTearsDownWatches(t *testing.T) {
	adapter, s, codec := newTestAdapter(t)
	conn := newFakeConn()

	adapter.Handle(conn, 5, common.NewWatchRequest("key", "", false), s)
	s.Settle()

	conn.close()

	adapter.Handle(newFakeConn(), 6, common.NewSetRequest("key", encode(t, codec, "value")), s)
	s.Settle()

	events := conn.events(t, codec)
	if len(events) != 1 {
		t.Errorf("expected only the initial event after close, got %d", len(events))
	}
}

func TestWatchRejectedWithoutPushSupport(t *testing.T) {
	adapter, s, _ := newTestAdapter(t)
	conn := newFakeConn()
	conn.canPush = false

	resp := adapter.Handle(conn, 1, common.NewWatchRequest("key", "", false), s)
	if resp.Err == "" {
		t.Error("expected watch to be rejected on a transport without push support")
	}
}
