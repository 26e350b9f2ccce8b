package app

import (
	"encoding/json"
	"testing"
)

func TestTransitionForwardOnly(t *testing.T) {
	forward := []struct {
		from, to ResponseState
	}{
		{Pending{}, Queued{}},
		{Queued{}, InProgress{}},
		{Queued{}, Queued{Logs: []string{"refresh"}}},
		{InProgress{}, InProgress{Logs: []string{"more"}}},
		{InProgress{}, Completed{Content: "done"}},
		{Pending{}, Failed{Err: "boom"}},
		{Queued{}, Failed{Err: "boom"}},
	}
	for _, tc := range forward {
		if _, err := Transition(tc.from, tc.to); err != nil {
			t.Fatalf("Transition(%s -> %s) unexpectedly failed: %v", tc.from.Status(), tc.to.Status(), err)
		}
	}

	backward := []struct {
		from, to ResponseState
	}{
		{InProgress{}, Queued{}},
		{Queued{}, Pending{}},
		{Completed{}, InProgress{}},
		{Completed{}, Failed{}},
		{Failed{}, Completed{}},
	}
	for _, tc := range backward {
		if _, err := Transition(tc.from, tc.to); err == nil {
			t.Fatalf("Transition(%s -> %s) must fail", tc.from.Status(), tc.to.Status())
		}
	}
}

func TestResponseStateJSONRoundTrip(t *testing.T) {
	cases := []Response{
		{ID: "r1", State: Pending{}},
		{ID: "r2", State: Queued{Logs: []string{"a", "b"}}},
		{ID: "r3", State: InProgress{Logs: []string{"c"}}},
		{ID: "r4", State: Completed{Content: "done", Media: []MediaAsset{{Kind: "image", URL: "u"}}, Logs: []string{"starting", "rendering"}}},
		{ID: "r5", State: Failed{Err: "boom"}},
	}
	for _, resp := range cases {
		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal %s: %v", resp.ID, err)
		}
		var back Response
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", resp.ID, err)
		}
		if back.State.Status() != resp.State.Status() {
			t.Fatalf("%s: status %q != %q", resp.ID, back.State.Status(), resp.State.Status())
		}
		if back.Content() != resp.Content() {
			t.Fatalf("%s: content %q != %q", resp.ID, back.Content(), resp.Content())
		}
		if len(back.Logs()) != len(resp.Logs()) {
			t.Fatalf("%s: logs %v != %v", resp.ID, back.Logs(), resp.Logs())
		}
	}
}

func TestUnknownStatusFailsUnmarshal(t *testing.T) {
	var resp Response
	if err := json.Unmarshal([]byte(`{"id":"r","status":"exploded"}`), &resp); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
