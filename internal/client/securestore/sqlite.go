package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/fieldlink/fieldlink-go/internal/client/securestore/migrations"
	"github.com/fieldlink/fieldlink-go/internal/common"
	"github.com/fieldlink/fieldlink-go/internal/cryptox"
	"github.com/fieldlink/fieldlink-go/internal/dbx"
)

const entrySaltSize = 16

// SQLiteStore is the on-device Store implementation. Every value is
// encrypted at rest with a key derived from the device secret; gated values
// are encrypted with a key derived from the strong-auth secret instead, so
// they are unreadable without it.
type SQLiteStore struct {
	db           *sql.DB
	deviceSecret []byte

	mu      sync.Mutex
	gateKey []byte // set while the strong-auth gate is unlocked
}

// Open opens (or creates) the store database at dsn, applies schema
// migrations, and returns a store bound to the given device secret.
func Open(ctx context.Context, dsn string, deviceSecret []byte) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &SQLiteStore{db: db, deviceSecret: deviceSecret}, nil
}

// NewSQLiteStore wraps an already migrated database handle. Used by tests.
func NewSQLiteStore(db *sql.DB, deviceSecret []byte) *SQLiteStore {
	return &SQLiteStore{db: db, deviceSecret: deviceSecret}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ConfigureStrongAuth unlocks the strong-auth gate with the given secret,
// creating the gate on first use. If a gate already exists and the secret
// does not verify against it, common.ErrAuthenticationRequired is returned.
func (s *SQLiteStore) ConfigureStrongAuth(ctx context.Context, secret []byte) error {
	var salt, verifier []byte
	err := s.db.QueryRowContext(ctx, `SELECT salt, verifier FROM strong_auth_gate WHERE id = 1`).Scan(&salt, &verifier)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		salt = common.GenerateRandByteArray(entrySaltSize)
		key := cryptox.DeriveKey(secret, salt)
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO strong_auth_gate (id, salt, verifier) VALUES (1, ?, ?)`,
			salt, cryptox.MakeVerifier(key)); err != nil {
			return fmt.Errorf("create strong-auth gate: %w", err)
		}
		s.setGateKey(key)
		return nil
	case err != nil:
		return fmt.Errorf("read strong-auth gate: %w", err)
	}

	key := cryptox.DeriveKey(secret, salt)
	if !cryptox.VerifierMatches(verifier, cryptox.MakeVerifier(key)) {
		return common.ErrAuthenticationRequired
	}
	s.setGateKey(key)
	return nil
}

// Lock discards the unlocked gate key. Gated saves fail until the gate is
// unlocked again.
func (s *SQLiteStore) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.gateKey)
	s.gateKey = nil
}

// StrongAuthConfigured reports whether a strong-auth gate has been set up.
func (s *SQLiteStore) StrongAuthConfigured(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM strong_auth_gate`).Scan(&n); err != nil {
		return false, fmt.Errorf("read strong-auth gate: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, value []byte, gated bool) error {
	base, err := s.baseSecret(gated)
	if err != nil {
		return err
	}
	return s.saveOne(ctx, s.db, key, value, base, gated)
}

func (s *SQLiteStore) SaveAll(ctx context.Context, entries map[string][]byte) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for key, value := range entries {
			if err := s.saveOne(ctx, tx, key, value, s.deviceSecret, false); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Load(ctx context.Context, key string, auth *AuthContext) ([]byte, error) {
	var value, nonce, salt []byte
	var gated bool
	err := s.db.QueryRowContext(ctx,
		`SELECT value, nonce, salt, gated FROM secure_items WHERE key = ?`, key).
		Scan(&value, &nonce, &salt, &gated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load secure item %q: %w", key, err)
	}

	var base []byte
	if gated {
		base, err = s.verifyGate(ctx, auth)
		if err != nil {
			return nil, err
		}
	} else {
		base = s.deviceSecret
	}

	plaintext, err := cryptox.Open(value, nonce, cryptox.DeriveKey(base, salt))
	if err != nil {
		if gated {
			return nil, common.ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("decrypt secure item %q: %w", key, err)
	}
	return plaintext, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secure_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete secure item %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, keys ...string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM secure_items WHERE key = ?`, key); err != nil {
				return fmt.Errorf("delete secure item %q: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM secure_items WHERE key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("check secure item %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) saveOne(ctx context.Context, db dbx.DBTX, key string, value, base []byte, gated bool) error {
	salt := common.GenerateRandByteArray(entrySaltSize)
	ciphertext, nonce, err := cryptox.Seal(value, cryptox.DeriveKey(base, salt))
	if err != nil {
		return fmt.Errorf("encrypt secure item %q: %w", key, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO secure_items (key, value, nonce, salt, gated) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, nonce = excluded.nonce,
			salt = excluded.salt, gated = excluded.gated
	`, key, ciphertext, nonce, salt, gated)
	if err != nil {
		return fmt.Errorf("save secure item %q: %w", key, err)
	}
	return nil
}

// baseSecret returns the secret to derive entry keys from: the device secret
// for plain entries, the unlocked gate key for gated ones.
func (s *SQLiteStore) baseSecret(gated bool) ([]byte, error) {
	if !gated {
		return s.deviceSecret, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gateKey == nil {
		return nil, common.ErrAuthenticationRequired
	}
	return s.gateKey, nil
}

// verifyGate checks the supplied auth context against the stored gate and
// returns the gate key on success.
func (s *SQLiteStore) verifyGate(ctx context.Context, auth *AuthContext) ([]byte, error) {
	if auth == nil {
		return nil, common.ErrAuthenticationRequired
	}

	var salt, verifier []byte
	err := s.db.QueryRowContext(ctx, `SELECT salt, verifier FROM strong_auth_gate WHERE id = 1`).Scan(&salt, &verifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrAuthenticationRequired
	}
	if err != nil {
		return nil, fmt.Errorf("read strong-auth gate: %w", err)
	}

	key := cryptox.DeriveKey(auth.Secret, salt)
	if !cryptox.VerifierMatches(verifier, cryptox.MakeVerifier(key)) {
		return nil, common.ErrAuthenticationRequired
	}
	return key, nil
}

func (s *SQLiteStore) setGateKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateKey = key
}

var _ Store = (*SQLiteStore)(nil)
