package queue

import (
	"encoding/json"
	"testing"
)

func TestParsePayload(t *testing.T) {
	type req struct {
		Retrain bool `json:"retrain"`
	}

	got, err := ParsePayload[req](json.RawMessage(`{"retrain":true}`))
	if err != nil || !got.Retrain {
		t.Fatalf("parse = %+v, %v", got, err)
	}
	for _, empty := range []json.RawMessage{nil, json.RawMessage("null")} {
		got, err := ParsePayload[req](empty)
		if err != nil || got == nil || got.Retrain {
			t.Fatalf("empty payload %q = %+v, %v", empty, got, err)
		}
	}
	if _, err := ParsePayload[req](json.RawMessage(`{"retrain":"yes"}`)); err == nil {
		t.Fatalf("expected type error")
	}
}
