package server

import (
	"github.com/reactive-kv/rkv/lib/store"
	"github.com/reactive-kv/rkv/rpc/common"
	"github.com/reactive-kv/rkv/rpc/transport"
)

// IRPCServerAdapter translates wire messages into store operations.
// The conn and requestID identify the requester so adapters can attach
// long-lived watch state to a connection.
type IRPCServerAdapter interface {
	Handle(conn transport.IServerConn, requestID uint64, req *common.Message, s store.IStore) *common.Message
}
