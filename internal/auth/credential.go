package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"webmaster-monitor/internal/settings"
)

const (
	CredentialKey  = "wm_monitor_api_key"
	ActivatedAtKey = "wm_monitor_activated"

	credentialPrefix = "wm_"
	credentialBytes  = 32
)

var (
	ErrMissingCredential = errors.New("missing api key")
	ErrInvalidCredential = errors.New("invalid api key")
	ErrNoCredential      = errors.New("no api key configured")
)

// CredentialStore owns the single shared API key of this installation.
type CredentialStore struct {
	Settings settings.Store
	Now      func() time.Time
}

func NewCredentialStore(st settings.Store) *CredentialStore {
	return &CredentialStore{Settings: st, Now: time.Now}
}

// Generate returns a fresh credential without storing it.
func Generate() (string, error) {
	buf := make([]byte, credentialBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return credentialPrefix + hex.EncodeToString(buf), nil
}

// Rotate replaces the stored credential. The previous value stops verifying
// as soon as the write lands.
func (s *CredentialStore) Rotate(ctx context.Context) (string, error) {
	key, err := Generate()
	if err != nil {
		return "", err
	}
	if err := s.Settings.Set(ctx, CredentialKey, key); err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	return key, nil
}

// EnsureExists returns the stored credential, minting one when none exists.
// created reports whether a new credential was minted.
func (s *CredentialStore) EnsureExists(ctx context.Context) (key string, created bool, err error) {
	key, err = s.Current(ctx)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, ErrNoCredential) {
		return "", false, err
	}

	key, err = s.Rotate(ctx)
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

// Activate runs on every agent start. It keeps an existing credential and
// stamps the activation time each time.
func (s *CredentialStore) Activate(ctx context.Context) (key string, created bool, err error) {
	key, created, err = s.EnsureExists(ctx)
	if err != nil {
		return "", false, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if err := s.Settings.Set(ctx, ActivatedAtKey, strconv.FormatInt(now().Unix(), 10)); err != nil {
		return "", false, fmt.Errorf("store activation time: %w", err)
	}
	return key, created, nil
}

func (s *CredentialStore) Current(ctx context.Context) (string, error) {
	key, ok, err := s.Settings.Get(ctx, CredentialKey)
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	if !ok || key == "" {
		return "", ErrNoCredential
	}
	return key, nil
}

// Verify reads the stored credential on every call. It fails closed when no
// credential exists or the store cannot be read.
func (s *CredentialStore) Verify(ctx context.Context, candidate string) error {
	if candidate == "" {
		return ErrMissingCredential
	}
	stored, err := s.Current(ctx)
	if err != nil {
		return ErrInvalidCredential
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}
