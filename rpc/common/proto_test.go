package common

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMessageTypeJSONRoundTrip(t *testing.T) {
	types := []MessageType{
		MsgTSet, MsgTMerge, MsgTMergeCollection, MsgTGet, MsgTGetAllKeys,
		MsgTClear, MsgTSettle, MsgTInfo, MsgTWatch, MsgTUnwatch, MsgTEvent,
		MsgTError, MsgTSuccess,
	}

	for _, mt := range types {
		encoded, err := json.Marshal(mt)
		if err != nil {
			t.Fatalf("failed to marshal %s: %v", mt, err)
		}

		var decoded MessageType
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			t.Fatalf("failed to unmarshal %s: %v", encoded, err)
		}
		if decoded != mt {
			t.Errorf("round trip changed %s into %s", mt, decoded)
		}
	}
}

func TestMessageTypeUnmarshalUnknown(t *testing.T) {
	var mt MessageType
	if err := json.Unmarshal([]byte(`"bogus"`), &mt); err == nil {
		t.Error("expected error for unknown message type")
	}
}

func TestResponseFactoriesCarryErrors(t *testing.T) {
	err := errors.New("backend unavailable")

	for _, msg := range []*Message{
		NewSetResponse(err),
		NewMergeResponse(err),
		NewMergeCollectionResponse(err),
		NewGetResponse(nil, false, err),
		NewGetAllKeysResponse(nil, err),
		NewClearResponse(err),
		NewInfoResponse(nil, err),
		NewWatchResponse(err),
	} {
		if msg.Err != err.Error() {
			t.Errorf("%s response dropped the error, got %q", msg.MsgType, msg.Err)
		}
	}

	if msg := NewSetResponse(nil); msg.Err != "" {
		t.Errorf("nil error should leave Err empty, got %q", msg.Err)
	}
}

func TestWatchRequestFields(t *testing.T) {
	req := NewWatchRequest("users_", "profile.name", true)
	if req.MsgType != MsgTWatch {
		t.Errorf("expected watch type, got %s", req.MsgType)
	}
	if req.Key != "users_" || req.Selector != "profile.name" || !req.WaitForCollection {
		t.Errorf("watch request fields not carried: %+v", req)
	}
}
