package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"webmaster-monitor/internal/settings"
)

func newStore(t *testing.T) *CredentialStore {
	t.Helper()
	st, err := settings.NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewCredentialStore(st)
}

func TestGenerate_Format(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(key, "wm_") || len(key) != 3+64 {
		t.Fatalf("unexpected key %q", key)
	}
	other, _ := Generate()
	if other == key {
		t.Fatalf("expected distinct keys")
	}
}

func TestVerify_FailsClosedWithoutCredential(t *testing.T) {
	s := newStore(t)
	if err := s.Verify(context.Background(), "wm_anything"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if err := s.Verify(context.Background(), ""); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}

func TestRotate_InvalidatesPrevious(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first, err := s.Rotate(ctx)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := s.Verify(ctx, first); err != nil {
		t.Fatalf("expected first key valid, got %v", err)
	}

	second, err := s.Rotate(ctx)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := s.Verify(ctx, first); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected previous key rejected, got %v", err)
	}
	if err := s.Verify(ctx, second); err != nil {
		t.Fatalf("expected second key valid, got %v", err)
	}
}

func TestEnsureExists_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	key, created, err := s.EnsureExists(ctx)
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	again, created, err := s.EnsureExists(ctx)
	if err != nil || created || again != key {
		t.Fatalf("expected existing key to be kept, got %q created=%v err=%v", again, created, err)
	}
	if _, ok, _ := s.Settings.Get(ctx, ActivatedAtKey); ok {
		t.Fatalf("reading the key must not stamp an activation")
	}
}

func TestActivate_StampsEveryStart(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	clock := time.Unix(1700000000, 0)
	s.Now = func() time.Time { return clock }

	key, created, err := s.Activate(ctx)
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	if at, ok, _ := s.Settings.Get(ctx, ActivatedAtKey); !ok || at != "1700000000" {
		t.Fatalf("unexpected activation time %q", at)
	}

	clock = clock.Add(time.Hour)
	again, created, err := s.Activate(ctx)
	if err != nil || created || again != key {
		t.Fatalf("expected existing key to be kept, got %q created=%v err=%v", again, created, err)
	}
	if at, _, _ := s.Settings.Get(ctx, ActivatedAtKey); at != "1700003600" {
		t.Fatalf("expected activation time refreshed, got %q", at)
	}
}
