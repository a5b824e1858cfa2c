package securestore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlink/fieldlink-go/internal/common"

	_ "modernc.org/sqlite"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE secure_items (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  nonce BLOB NOT NULL,
  salt  BLOB NOT NULL,
  gated INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE strong_auth_gate (
  id       INTEGER PRIMARY KEY CHECK (id = 1),
  salt     BLOB NOT NULL,
  verifier BLOB NOT NULL
);
`)
	require.NoError(t, err)

	return NewSQLiteStore(db, []byte("device-secret"))
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	require.NoError(t, s.Save(ctx, "auth.access_token", []byte("A1"), false))

	got, err := s.Load(ctx, "auth.access_token", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("A1"), got)

	// Values are encrypted at rest.
	var raw []byte
	require.NoError(t, s.db.QueryRow(`SELECT value FROM secure_items WHERE key = 'auth.access_token'`).Scan(&raw))
	assert.NotEqual(t, []byte("A1"), raw)
}

func TestStore_LoadMissingKey(t *testing.T) {
	s := setupStore(t)

	_, err := s.Load(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStore_GatedEntryRequiresAuthContext(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	// Gated save before the gate is unlocked must fail.
	err := s.Save(ctx, "auth.biometric", []byte("creds"), true)
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	require.NoError(t, s.ConfigureStrongAuth(ctx, []byte("passcode")))
	require.NoError(t, s.Save(ctx, "auth.biometric", []byte("creds"), true))

	// No auth context.
	_, err = s.Load(ctx, "auth.biometric", nil)
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	// Wrong secret.
	_, err = s.Load(ctx, "auth.biometric", &AuthContext{Secret: []byte("wrong")})
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	// Correct secret.
	got, err := s.Load(ctx, "auth.biometric", &AuthContext{Secret: []byte("passcode")})
	require.NoError(t, err)
	assert.Equal(t, []byte("creds"), got)
}

func TestStore_ConfigureStrongAuthVerifiesExistingGate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	require.NoError(t, s.ConfigureStrongAuth(ctx, []byte("passcode")))
	s.Lock()

	err := s.ConfigureStrongAuth(ctx, []byte("other"))
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	require.NoError(t, s.ConfigureStrongAuth(ctx, []byte("passcode")))
}

func TestStore_GatedSaveFailsAfterLock(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	require.NoError(t, s.ConfigureStrongAuth(ctx, []byte("passcode")))
	s.Lock()

	err := s.Save(ctx, "auth.biometric", []byte("creds"), true)
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)
}

func TestStore_ExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "k", []byte("v"), false))
	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "k"))
	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete(ctx, "k"))
}

func TestStore_SaveAllWritesEveryEntry(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	entries := map[string][]byte{
		"auth.access_token":  []byte("A1"),
		"auth.refresh_token": []byte("R1"),
		"auth.token_expiry":  []byte("2026-01-01T00:00:00Z"),
		"auth.user_profile":  []byte(`{"id":"u1"}`),
	}
	require.NoError(t, s.SaveAll(ctx, entries))

	for key, want := range entries {
		got, err := s.Load(ctx, key, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestStore_DeleteAllRemovesEveryEntry(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	require.NoError(t, s.SaveAll(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
	require.NoError(t, s.DeleteAll(ctx, "a", "b", "missing"))

	for _, key := range []string{"a", "b"} {
		_, err := s.Load(ctx, key, nil)
		assert.ErrorIs(t, err, common.ErrNotFound)
	}
}
