package transport

import (
	"encoding/json"
	"testing"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

func TestFrameWireShape(t *testing.T) {
	raw, err := marshalEvent("req-1", protocol.Event{
		Kind:      protocol.EventToken,
		SessionID: "session:demo:1",
		Payload:   "hel",
	})
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["id"] != "req-1" || decoded["type"] != "event" {
		t.Fatalf("frame envelope wrong: %s", raw)
	}
	ev := decoded["event"].(map[string]interface{})
	if ev["kind"] != protocol.EventToken || ev["payload"] != "hel" {
		t.Fatalf("event body wrong: %s", raw)
	}
}

func TestRequestDecodesAllTypes(t *testing.T) {
	for _, raw := range []string{
		`{"id":"1","type":"send_message","session":"s","text":"hi","max_iterations":5}`,
		`{"id":"2","type":"cancel","session":"s"}`,
		`{"id":"5","type":"reset_session","session":"s"}`,
		`{"id":"3","type":"load_model","model_path":"/m/x.gguf","gpu":"cpu"}`,
		`{"id":"4","type":"set_project_root","path":"/work/proj"}`,
	} {
		var req Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if req.ID == "" || req.Type == "" {
			t.Fatalf("missing envelope fields in %s", raw)
		}
	}
}
