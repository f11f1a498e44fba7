package messages

import "testing"

func TestGet(t *testing.T) {
	if got := Get("it", InvalidAPIKey); got != "API key non valida" {
		t.Fatalf("unexpected italian message %q", got)
	}
	if got := Get("de", MissingAPIKey); got != "Missing API key" {
		t.Fatalf("expected english fallback, got %q", got)
	}
	if got := Get("en", UpdateSucceeded, "Plugin"); got != "Plugin updated successfully" {
		t.Fatalf("unexpected formatted message %q", got)
	}
	if got := Get("en", "nope"); got != "nope" {
		t.Fatalf("expected key fallback, got %q", got)
	}
}
