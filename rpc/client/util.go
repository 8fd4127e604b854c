package client

import (
	"fmt"

	"github.com/reactive-kv/rkv/lib/logger"
	"github.com/reactive-kv/rkv/lib/serializer"
	"github.com/reactive-kv/rkv/rpc/common"
	"github.com/reactive-kv/rkv/rpc/transport"
)

var Logger = logger.GetLogger("rpc")

// invokeRPCRequest is a helper function used to send one request and
// validate the response. It checks if the response is an error response
// and if the type of the response is the expected type.
func invokeRPCRequest(req *common.Message, trans transport.IRPCClientTransport, codec serializer.ISerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := codec.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := trans.Send(reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize and validate the response
	return decodeResponse(respBytes, req.MsgType, codec)
}

// decodeResponse deserializes a response and checks it against the
// expected message type
func decodeResponse(respBytes []byte, expected common.MessageType, codec serializer.ISerializer) (*common.Message, error) {
	resp := &common.Message{}
	if err := codec.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC IStoreAdapter - Error: %s", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, fmt.Errorf("RPC IStoreAdapter - Error: %s", resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != expected {
		return nil, fmt.Errorf("RPC IStoreAdapter - Unexpected message type: %s, expected %s", resp.MsgType, expected)
	}

	// Return the response
	return resp, nil
}
