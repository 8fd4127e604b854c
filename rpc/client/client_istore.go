package client

import (
	"fmt"

	"github.com/reactive-kv/rkv/lib/backend"
	"github.com/reactive-kv/rkv/lib/serializer"
	"github.com/reactive-kv/rkv/lib/store"
	"github.com/reactive-kv/rkv/rpc/common"
	"github.com/reactive-kv/rkv/rpc/transport"
)

// NewRPCStore creates a store.IStore speaking to a remote RPC server.
// The function takes a config, a transport and a serializer as
// parameters; the serializer must match the server's.
func NewRPCStore(
	config common.ClientConfig,
	trans transport.IRPCClientTransport,
	codec serializer.ISerializer,
) (store.IStore, error) {

	// Connect the transport
	err := trans.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC store
	return &rpcStore{
		config:     config,
		transport:  trans,
		serializer: codec,
	}, nil
}

type rpcStore struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.ISerializer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

// Connect registers a watch on the server. Identity and selector
// projections are supported; reducers are arbitrary functions and
// cannot cross the RPC boundary.
func (i *rpcStore) Connect(mapping store.Mapping) (store.ConnectionID, error) {
	if mapping.Projection.IsReducer() {
		return 0, store.NewError(store.RetCInternalError, "reducer projections cannot cross the RPC boundary")
	}

	selector, _ := mapping.Projection.Selector()
	req := common.NewWatchRequest(mapping.Key, selector, mapping.WaitForCollectionCallback)

	reqBytes, err := i.serializer.Serialize(*req)
	if err != nil {
		return 0, err
	}

	// Events arrive on the transport reader goroutine, in server order
	handler := func(payload []byte) {
		i.dispatchEvent(payload, mapping)
	}

	watchID, respBytes, err := i.transport.Subscribe(reqBytes, handler)
	if err != nil {
		return 0, err
	}
	if _, err := decodeResponse(respBytes, common.MsgTWatch, i.serializer); err != nil {
		i.transport.Unsubscribe(watchID)
		return 0, err
	}

	return store.ConnectionID(watchID), nil
}

func (i *rpcStore) Disconnect(id store.ConnectionID) {
	// Stop local delivery first so no event outlives Disconnect
	i.transport.Unsubscribe(uint64(id))

	req := common.NewUnwatchRequest(uint64(id))
	if _, err := invokeRPCRequest(req, i.transport, i.serializer); err != nil {
		Logger.Warningf("Failed to unwatch %d on server: %v", id, err)
	}
}

func (i *rpcStore) Get(key string) (value interface{}, loaded bool, err error) {
	req := common.NewGetRequest(key)
	resp, err := invokeRPCRequest(req, i.transport, i.serializer)
	if err != nil {
		return nil, false, err
	}
	if !resp.Ok {
		return nil, false, nil
	}
	value, err = i.decodeValue(resp.Value)
	return value, err == nil, err
}

func (i *rpcStore) GetAllKeys() (keys []string, err error) {
	req := common.NewGetAllKeysRequest()
	resp, err := invokeRPCRequest(req, i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (i *rpcStore) Set(key string, value interface{}) (err error) {
	raw, err := i.encodeValue(value)
	if err != nil {
		return err
	}
	req := common.NewSetRequest(key, raw)
	_, err = invokeRPCRequest(req, i.transport, i.serializer)
	return err
}

func (i *rpcStore) Merge(key string, delta interface{}) (err error) {
	raw, err := i.encodeValue(delta)
	if err != nil {
		return err
	}
	req := common.NewMergeRequest(key, raw)
	_, err = invokeRPCRequest(req, i.transport, i.serializer)
	return err
}

func (i *rpcStore) MergeCollection(prefix string, deltas map[string]interface{}) (err error) {
	members := make(map[string][]byte, len(deltas))
	for member, delta := range deltas {
		raw, err := i.encodeValue(delta)
		if err != nil {
			return err
		}
		members[member] = raw
	}
	req := common.NewMergeCollectionRequest(prefix, members)
	_, err = invokeRPCRequest(req, i.transport, i.serializer)
	return err
}

func (i *rpcStore) Clear() (err error) {
	req := common.NewClearRequest()
	_, err = invokeRPCRequest(req, i.transport, i.serializer)
	return err
}

// Settle waits until the server has delivered all pending
// notifications, including pushes for this client's watches.
func (i *rpcStore) Settle() {
	req := common.NewSettleRequest()
	if _, err := invokeRPCRequest(req, i.transport, i.serializer); err != nil {
		Logger.Warningf("Settle failed: %v", err)
	}
}

func (i *rpcStore) GetBackendInfo() (info backend.BackendInfo, err error) {
	req := common.NewInfoRequest()
	resp, err := invokeRPCRequest(req, i.transport, i.serializer)
	if err != nil {
		return backend.BackendInfo{}, err
	}
	if err := i.serializer.Deserialize(resp.Meta, &info); err != nil {
		return backend.BackendInfo{}, fmt.Errorf("failed to decode backend info: %v", err)
	}
	return info, nil
}

func (i *rpcStore) Close() (err error) {
	return i.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// dispatchEvent decodes one pushed event and invokes the mapping's
// callback
func (i *rpcStore) dispatchEvent(payload []byte, mapping store.Mapping) {
	var msg common.Message
	if err := i.serializer.Deserialize(payload, &msg); err != nil {
		Logger.Errorf("Failed to decode event: %v", err)
		return
	}
	if msg.MsgType != common.MsgTEvent {
		Logger.Warningf("Unexpected push message type: %s", msg.MsgType)
		return
	}

	if mapping.WaitForCollectionCallback {
		if mapping.CollectionCallback == nil {
			return
		}
		collection := make(map[string]interface{}, len(msg.Members))
		for member, raw := range msg.Members {
			value, err := i.decodeValue(raw)
			if err != nil {
				Logger.Errorf("Failed to decode event value for %q: %v", member, err)
				return
			}
			collection[member] = value
		}
		mapping.CollectionCallback(collection)
		return
	}

	if mapping.Callback == nil {
		return
	}
	var value interface{}
	if msg.Ok {
		decoded, err := i.decodeValue(msg.Value)
		if err != nil {
			Logger.Errorf("Failed to decode event value for %q: %v", msg.Key, err)
			return
		}
		value = decoded
	}
	mapping.Callback(value, msg.Key)
}

// decodeValue decodes an opaque wire value. Empty bytes mean nil.
func (i *rpcStore) decodeValue(raw []byte) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value interface{}
	if err := i.serializer.Deserialize(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to decode value: %v", err)
	}
	return value, nil
}

// encodeValue encodes a value for the wire. Nil stays empty.
func (i *rpcStore) encodeValue(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return i.serializer.Serialize(value)
}
