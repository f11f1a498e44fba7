package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelope_ServerOnly(t *testing.T) {
	env := Envelope{
		AgentVersion: "1.0.2",
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload:      ServerPayload{Server: ServerInfo{Server: ServerBlock{Hostname: "web1"}}},
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["plugin_version"] != "1.0.2" {
		t.Fatalf("unexpected version: %v", out["plugin_version"])
	}
	if out["timestamp"] != "2026-03-01T10:00:00Z" {
		t.Fatalf("unexpected timestamp: %v", out["timestamp"])
	}
	if _, ok := out["server"]; !ok {
		t.Fatalf("expected server section")
	}
	if _, ok := out["wordpress"]; ok {
		t.Fatalf("server-only envelope must not carry wordpress")
	}
	if _, ok := out["multisite"]; ok {
		t.Fatalf("server-only envelope must not carry multisite")
	}
}

func TestEnvelope_Composite(t *testing.T) {
	env := Envelope{AgentVersion: "1", Timestamp: time.Now(), Payload: CompositePayload{}}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"server", "wordpress", "multisite"} {
		if _, ok := out[key]; !ok {
			t.Fatalf("expected %s section", key)
		}
	}
}
