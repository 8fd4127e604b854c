package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for requests, responses and
// server-pushed events. Which fields are used depends on the type of
// message. Values and deltas travel as opaque bytes, encoded with the
// same serializer that frames the message itself.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string            `json:"key,omitempty"`     // Used for: Set, Merge, Get, Watch, Event
	Value   []byte            `json:"value,omitempty"`   // Used for: Set, Merge (request), Get (response), Event
	Members map[string][]byte `json:"members,omitempty"` // Used for: MergeCollection (request), Event (whole collection)
	Keys    []string          `json:"keys,omitempty"`    // Used for: GetAllKeys (response)

	// Watch only fields
	Selector          string `json:"selector,omitempty"`            // Optional property-path projection
	WaitForCollection bool   `json:"wait_for_collection,omitempty"` // Whole-collection delivery mode
	WatchID           uint64 `json:"watch_id,omitempty"`            // Used for: Unwatch (request)

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: Get (value found), Event (value present)
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info (response), free for additional adapters
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTSet,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewMergeRequest creates a new Merge request
func NewMergeRequest(key string, delta []byte) *Message {
	return &Message{
		MsgType: MsgTMerge,
		Key:     key,
		Value:   delta,
	}
}

// NewMergeResponse creates a new Merge response
func NewMergeResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMerge,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewMergeCollectionRequest creates a new MergeCollection request.
// The prefix travels in Key, the per-member deltas in Members.
func NewMergeCollectionRequest(prefix string, members map[string][]byte) *Message {
	return &Message{
		MsgType: MsgTMergeCollection,
		Key:     prefix,
		Members: members,
	}
}

// NewMergeCollectionResponse creates a new MergeCollection response
func NewMergeCollectionResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTMergeCollection,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTGet,
		Ok:      ok,
		Value:   value,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetAllKeysRequest creates a new GetAllKeys request
func NewGetAllKeysRequest() *Message {
	return &Message{
		MsgType: MsgTGetAllKeys,
	}
}

// NewGetAllKeysResponse creates a new GetAllKeys response
func NewGetAllKeysResponse(keys []string, err error) *Message {
	msg := &Message{
		MsgType: MsgTGetAllKeys,
		Keys:    keys,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewClearRequest creates a new Clear request
func NewClearRequest() *Message {
	return &Message{
		MsgType: MsgTClear,
	}
}

// NewClearResponse creates a new Clear response
func NewClearResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTClear,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewSettleRequest creates a new Settle request
func NewSettleRequest() *Message {
	return &Message{
		MsgType: MsgTSettle,
	}
}

// NewSettleResponse creates a new Settle response
func NewSettleResponse() *Message {
	return &Message{
		MsgType: MsgTSettle,
	}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{
		MsgType: MsgTInfo,
	}
}

// NewInfoResponse creates a new Info response carrying the serialized
// backend info in Meta
func NewInfoResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTInfo,
		Meta:    meta,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewWatchRequest creates a new Watch request. The watch id equals the
// transport request id of this message; events are pushed tagged with it.
func NewWatchRequest(key, selector string, waitForCollection bool) *Message {
	return &Message{
		MsgType:           MsgTWatch,
		Key:               key,
		Selector:          selector,
		WaitForCollection: waitForCollection,
	}
}

// NewWatchResponse creates a new Watch response
func NewWatchResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTWatch,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewUnwatchRequest creates a new Unwatch request for the given watch id
func NewUnwatchRequest(watchID uint64) *Message {
	return &Message{
		MsgType: MsgTUnwatch,
		WatchID: watchID,
	}
}

// NewUnwatchResponse creates a new Unwatch response
func NewUnwatchResponse() *Message {
	return &Message{
		MsgType: MsgTUnwatch,
	}
}

// NewMemberEvent creates an event carrying one derived value. Ok is
// false when the value is absent (key removed or projection miss).
func NewMemberEvent(key string, value []byte, ok bool) *Message {
	return &Message{
		MsgType: MsgTEvent,
		Key:     key,
		Value:   value,
		Ok:      ok,
	}
}

// NewCollectionEvent creates an event carrying a whole-collection
// snapshot of derived values
func NewCollectionEvent(members map[string][]byte) *Message {
	return &Message{
		MsgType: MsgTEvent,
		Members: members,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSet:
		return "set"
	case MsgTMerge:
		return "merge"
	case MsgTMergeCollection:
		return "mergeCollection"
	case MsgTGet:
		return "get"
	case MsgTGetAllKeys:
		return "getAllKeys"
	case MsgTClear:
		return "clear"
	case MsgTSettle:
		return "settle"
	case MsgTInfo:
		return "info"
	case MsgTWatch:
		return "watch"
	case MsgTUnwatch:
		return "unwatch"
	case MsgTEvent:
		return "event"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "set":
		*t = MsgTSet
	case "merge":
		*t = MsgTMerge
	case "mergeCollection":
		*t = MsgTMergeCollection
	case "get":
		*t = MsgTGet
	case "getAllKeys":
		*t = MsgTGetAllKeys
	case "clear":
		*t = MsgTClear
	case "settle":
		*t = MsgTSettle
	case "info":
		*t = MsgTInfo
	case "watch":
		*t = MsgTWatch
	case "unwatch":
		*t = MsgTUnwatch
	case "event":
		*t = MsgTEvent
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTSet             // Overwrite a value
	MsgTMerge           // Deep-merge a delta into a value
	MsgTMergeCollection // Merge deltas into collection members
	MsgTGet             // Get a value by key
	MsgTGetAllKeys      // List all keys
	MsgTClear           // Remove all keys
	MsgTSettle          // Wait for pending notifications to drain
	MsgTInfo            // Backend metadata

	// Subscription operations

	MsgTWatch   // Register a subscription
	MsgTUnwatch // Remove a subscription
	MsgTEvent   // Server-pushed notification
)
