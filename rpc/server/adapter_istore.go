package server

import (
	"fmt"
	"sync"

	"github.com/reactive-kv/rkv/lib/serializer"
	"github.com/reactive-kv/rkv/lib/store"
	"github.com/reactive-kv/rkv/rpc/common"
	"github.com/reactive-kv/rkv/rpc/transport"
)

// NewIStoreServerAdapter creates the adapter serving store.IStore
// operations, including watch subscriptions. The serializer must be the
// one framing the wire messages, since values travel inside them.
func NewIStoreServerAdapter(codec serializer.ISerializer) IRPCServerAdapter {
	return &iStoreServerAdapterImpl{
		codec:   codec,
		watches: make(map[watchKey]store.ConnectionID),
	}
}

// watchKey identifies one watch: the owning connection plus the request
// id of its Watch message.
type watchKey struct {
	conn transport.IServerConn
	id   uint64
}

type iStoreServerAdapterImpl struct {
	codec serializer.ISerializer

	watchMu sync.Mutex
	watches map[watchKey]store.ConnectionID
}

func (adapter *iStoreServerAdapterImpl) Handle(conn transport.IServerConn, requestID uint64, req *common.Message, s store.IStore) *common.Message {
	// Check for nil store
	if s == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTSet:
		value, err := adapter.decodeValue(req.Value)
		if err != nil {
			return common.NewSetResponse(err)
		}
		return common.NewSetResponse(s.Set(req.Key, value))

	case common.MsgTMerge:
		delta, err := adapter.decodeValue(req.Value)
		if err != nil {
			return common.NewMergeResponse(err)
		}
		return common.NewMergeResponse(s.Merge(req.Key, delta))

	case common.MsgTMergeCollection:
		deltas := make(map[string]interface{}, len(req.Members))
		for member, raw := range req.Members {
			delta, err := adapter.decodeValue(raw)
			if err != nil {
				return common.NewMergeCollectionResponse(err)
			}
			deltas[member] = delta
		}
		return common.NewMergeCollectionResponse(s.MergeCollection(req.Key, deltas))

	case common.MsgTGet:
		value, ok, err := s.Get(req.Key)
		if err != nil {
			return common.NewGetResponse(nil, false, err)
		}
		raw, err := adapter.encodeValue(value)
		return common.NewGetResponse(raw, ok, err)

	case common.MsgTGetAllKeys:
		keys, err := s.GetAllKeys()
		return common.NewGetAllKeysResponse(keys, err)

	case common.MsgTClear:
		return common.NewClearResponse(s.Clear())

	case common.MsgTSettle:
		s.Settle()
		return common.NewSettleResponse()

	case common.MsgTInfo:
		info, err := s.GetBackendInfo()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := adapter.codec.Serialize(info)
		return common.NewInfoResponse(meta, err)

	case common.MsgTWatch:
		return adapter.handleWatch(conn, requestID, req, s)

	case common.MsgTUnwatch:
		adapter.removeWatch(watchKey{conn: conn, id: req.WatchID}, s)
		return common.NewUnwatchResponse()

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// --------------------------------------------------------------------------
// Watch Handling
// --------------------------------------------------------------------------

// handleWatch registers a store subscription whose deliveries are
// pushed to the client as event frames tagged with this request's id.
func (adapter *iStoreServerAdapterImpl) handleWatch(conn transport.IServerConn, requestID uint64, req *common.Message, s store.IStore) *common.Message {
	if !conn.CanPush() {
		return common.NewWatchResponse(fmt.Errorf("transport does not support watches"))
	}

	projection := store.Identity()
	if req.Selector != "" {
		projection = store.SelectorPath(req.Selector)
	}

	mapping := store.Mapping{
		Key:        req.Key,
		Projection: projection,
	}

	if req.WaitForCollection {
		mapping.WaitForCollectionCallback = true
		mapping.CollectionCallback = func(collection map[string]interface{}) {
			members := make(map[string][]byte, len(collection))
			for member, value := range collection {
				raw, err := adapter.encodeValue(value)
				if err != nil {
					Logger.Errorf("Failed to encode event for %q: %v", member, err)
					return
				}
				members[member] = raw
			}
			adapter.push(conn, requestID, common.NewCollectionEvent(members))
		}
	} else {
		mapping.Callback = func(value interface{}, key string) {
			raw, err := adapter.encodeValue(value)
			if err != nil {
				Logger.Errorf("Failed to encode event for %q: %v", key, err)
				return
			}
			adapter.push(conn, requestID, common.NewMemberEvent(key, raw, value != nil))
		}
	}

	id, err := s.Connect(mapping)
	if err != nil {
		return common.NewWatchResponse(err)
	}

	key := watchKey{conn: conn, id: requestID}
	adapter.watchMu.Lock()
	adapter.watches[key] = id
	adapter.watchMu.Unlock()

	// Tear the subscription down with the connection
	conn.OnClose(func() {
		adapter.removeWatch(key, s)
	})

	return common.NewWatchResponse(nil)
}

// removeWatch disconnects a watch's subscription. Idempotent: the
// connection close handler and an explicit Unwatch may both call it.
func (adapter *iStoreServerAdapterImpl) removeWatch(key watchKey, s store.IStore) {
	adapter.watchMu.Lock()
	id, ok := adapter.watches[key]
	delete(adapter.watches, key)
	adapter.watchMu.Unlock()

	if ok {
		s.Disconnect(id)
	}
}

// push serializes an event message and sends it as an event frame
func (adapter *iStoreServerAdapterImpl) push(conn transport.IServerConn, watchID uint64, event *common.Message) {
	payload, err := adapter.codec.Serialize(*event)
	if err != nil {
		Logger.Errorf("Failed to serialize event: %v", err)
		return
	}
	if err := conn.Push(watchID, payload); err != nil {
		Logger.Debugf("Failed to push event for watch %d: %v", watchID, err)
	}
}

// --------------------------------------------------------------------------
// Value Encoding
// --------------------------------------------------------------------------

// decodeValue decodes an opaque wire value. Empty bytes mean nil.
func (adapter *iStoreServerAdapterImpl) decodeValue(raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value interface{}
	if err := adapter.codec.Deserialize(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to decode value: %v", err)
	}
	return value, nil
}

// encodeValue encodes a value for the wire. Nil stays empty.
func (adapter *iStoreServerAdapterImpl) encodeValue(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return adapter.codec.Serialize(value)
}
