// Package securestore implements the secure credential store: an opaque,
// encrypted key-value store with an optional per-entry strong-authentication
// gate. The rest of the client only sees Save/Load/Delete/Exists; everything
// else (encryption, gating, schema) is internal.
package securestore

import "context"

// AuthContext carries the proof of a completed strong-authentication check
// (biometric or device passcode). The secret is the unlock value released by
// that check.
type AuthContext struct {
	Secret []byte
}

// Store is the secure key-value contract consumed by the token record
// manager. All operations are synchronous and safe for concurrent use.
//
// Load returns common.ErrNotFound when the key is absent and
// common.ErrAuthenticationRequired when the entry is gated and auth is nil
// or does not verify.
type Store interface {
	Save(ctx context.Context, key string, value []byte, gated bool) error
	Load(ctx context.Context, key string, auth *AuthContext) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// SaveAll writes several ungated entries in one transaction: either all
	// entries land or none do.
	SaveAll(ctx context.Context, entries map[string][]byte) error

	// DeleteAll removes several entries in one transaction. Missing keys are
	// not an error.
	DeleteAll(ctx context.Context, keys ...string) error
}
