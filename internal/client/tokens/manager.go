// Package tokens implements the token record manager: the single owner of
// the live credential record. All reads and mutations of the record go
// through a Manager, which serializes them internally so callers on any
// goroutine never observe a half-updated record.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fieldlink/fieldlink-go/internal/client/models"
	"github.com/fieldlink/fieldlink-go/internal/client/securestore"
	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/timex"
)

// Store keys for the persisted credential record and biometric credentials.
// These five entries are the store's entire schema.
const (
	keyAccessToken  = "auth.access_token"
	keyRefreshToken = "auth.refresh_token"
	keyTokenExpiry  = "auth.token_expiry"
	keyUserProfile  = "auth.user_profile"
	keyBiometric    = "auth.biometric_credentials"
)

// Manager owns the in-memory credential record and its durable copy in the
// secure store.
type Manager struct {
	store securestore.Store
	clock timex.Clock

	mu     sync.Mutex
	record *models.CredentialRecord

	onSaved   func(expiry time.Time)
	onCleared func()
}

func NewManager(store securestore.Store, clock timex.Clock) *Manager {
	return &Manager{store: store, clock: clock}
}

// SetScheduleHooks registers callbacks fired after a record is saved or
// cleared, used by the refresh coordinator to (re)arm or cancel the
// proactive refresh. Hooks must only arm or cancel timers; they run with
// the manager lock held and must not call back into the manager.
func (m *Manager) SetScheduleHooks(onSaved func(expiry time.Time), onCleared func()) {
	m.onSaved = onSaved
	m.onCleared = onCleared
}

// SaveTokens persists a new credential record and replaces the in-memory
// one. The write is all-or-nothing: if the store transaction fails, the
// previous record (possibly none) stays in effect and
// common.ErrStorageFailure is returned.
func (m *Manager) SaveTokens(ctx context.Context, access, refresh string, expiresIn time.Duration, user models.User) error {
	expiry := m.clock.Now().Add(expiresIn)

	profile, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("%w: encode user profile: %w", common.ErrStorageFailure, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err = m.store.SaveAll(ctx, map[string][]byte{
		keyAccessToken:  []byte(access),
		keyRefreshToken: []byte(refresh),
		keyTokenExpiry:  []byte(expiry.UTC().Format(time.RFC3339Nano)),
		keyUserProfile:  profile,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorageFailure, err)
	}

	m.record = &models.CredentialRecord{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       expiry,
		User:         user,
	}

	m.fireSaved(expiry)
	return nil
}

// UpdateTokens replaces the access token and expiry (and the refresh token,
// when newRefresh is non-empty) atomically with respect to readers. It
// requires an existing record.
func (m *Manager) UpdateTokens(ctx context.Context, access, newRefresh string, expiresIn time.Duration) error {
	expiry := m.clock.Now().Add(expiresIn)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record == nil {
		return common.ErrSessionExpired
	}

	refresh := m.record.RefreshToken
	if newRefresh != "" {
		refresh = newRefresh
	}

	err := m.store.SaveAll(ctx, map[string][]byte{
		keyAccessToken:  []byte(access),
		keyRefreshToken: []byte(refresh),
		keyTokenExpiry:  []byte(expiry.UTC().Format(time.RFC3339Nano)),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorageFailure, err)
	}

	m.record.AccessToken = access
	m.record.RefreshToken = refresh
	m.record.Expiry = expiry

	m.fireSaved(expiry)
	return nil
}

// ClearTokens removes the credential record from memory and store and
// cancels any scheduled proactive refresh. Biometric credentials are left
// alone: their lifecycle is independent.
func (m *Manager) ClearTokens(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteAll(ctx, keyAccessToken, keyRefreshToken, keyTokenExpiry, keyUserProfile); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorageFailure, err)
	}
	m.record = nil

	if m.onCleared != nil {
		m.onCleared()
	}
	return nil
}

// GetAccessToken returns the access token only while now < expiry.
func (m *Manager) GetAccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil || !m.clock.Now().Before(m.record.Expiry) {
		return "", false
	}
	return m.record.AccessToken, true
}

// RefreshToken returns the current refresh token, valid as refresh input
// even when the access token has expired.
func (m *Manager) RefreshToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil || m.record.RefreshToken == "" {
		return "", false
	}
	return m.record.RefreshToken, true
}

// IsTokenValid reports whether an unexpired access token is held.
func (m *Manager) IsTokenValid() bool {
	_, ok := m.GetAccessToken()
	return ok
}

// TokenExpiry returns the access token's expiry instant.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return time.Time{}, false
	}
	return m.record.Expiry, true
}

// Record returns a snapshot of the whole credential record. Token and
// expiry in the snapshot always belong to the same generation.
func (m *Manager) Record() (models.CredentialRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return models.CredentialRecord{}, false
	}
	return *m.record, true
}

// CurrentUser returns the profile attached to the current record.
func (m *Manager) CurrentUser() (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return models.User{}, false
	}
	return m.record.User, true
}

// Restore loads the persisted credential record into memory at startup.
// Returns common.ErrNotFound when no record is persisted.
func (m *Manager) Restore(ctx context.Context) (models.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	access, err := m.store.Load(ctx, keyAccessToken, nil)
	if err != nil {
		return models.CredentialRecord{}, m.restoreErr(err)
	}
	refresh, err := m.store.Load(ctx, keyRefreshToken, nil)
	if err != nil {
		return models.CredentialRecord{}, m.restoreErr(err)
	}
	rawExpiry, err := m.store.Load(ctx, keyTokenExpiry, nil)
	if err != nil {
		return models.CredentialRecord{}, m.restoreErr(err)
	}
	expiry, err := time.Parse(time.RFC3339Nano, string(rawExpiry))
	if err != nil {
		return models.CredentialRecord{}, fmt.Errorf("%w: parse expiry: %w", common.ErrStorageFailure, err)
	}
	profile, err := m.store.Load(ctx, keyUserProfile, nil)
	if err != nil {
		return models.CredentialRecord{}, m.restoreErr(err)
	}
	var user models.User
	if err := json.Unmarshal(profile, &user); err != nil {
		return models.CredentialRecord{}, fmt.Errorf("%w: decode user profile: %w", common.ErrStorageFailure, err)
	}

	m.record = &models.CredentialRecord{
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		Expiry:       expiry,
		User:         user,
	}

	m.fireSaved(expiry)
	return *m.record, nil
}

// SaveBiometricCredentials stores login credentials behind the strong-auth
// gate for later biometric re-login.
func (m *Manager) SaveBiometricCredentials(ctx context.Context, email, password string) error {
	creds := models.BiometricCredentials{Email: email, Password: password, SavedAt: m.clock.Now()}
	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("%w: encode biometric credentials: %w", common.ErrStorageFailure, err)
	}
	return m.store.Save(ctx, keyBiometric, raw, true)
}

// LoadBiometricCredentials reads the gated credentials. The auth context
// must carry a valid strong-auth secret.
func (m *Manager) LoadBiometricCredentials(ctx context.Context, auth *securestore.AuthContext) (models.BiometricCredentials, error) {
	raw, err := m.store.Load(ctx, keyBiometric, auth)
	if err != nil {
		return models.BiometricCredentials{}, err
	}
	var creds models.BiometricCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return models.BiometricCredentials{}, fmt.Errorf("%w: decode biometric credentials: %w", common.ErrStorageFailure, err)
	}
	return creds, nil
}

// HasBiometricCredentials reports whether gated credentials are saved.
func (m *Manager) HasBiometricCredentials(ctx context.Context) (bool, error) {
	return m.store.Exists(ctx, keyBiometric)
}

// ClearBiometricCredentials removes the gated credentials.
func (m *Manager) ClearBiometricCredentials(ctx context.Context) error {
	return m.store.Delete(ctx, keyBiometric)
}

func (m *Manager) fireSaved(expiry time.Time) {
	if m.onSaved != nil {
		m.onSaved(expiry)
	}
}

func (m *Manager) restoreErr(err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return common.ErrNotFound
	}
	return fmt.Errorf("%w: %w", common.ErrStorageFailure, err)
}
