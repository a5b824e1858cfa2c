package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateDeviceSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldlink.db.key")

	secret, err := loadOrCreateDeviceSecret(path)
	require.NoError(t, err)
	assert.Len(t, secret, deviceSecretSize)

	// A second call returns the same secret.
	again, err := loadOrCreateDeviceSecret(path)
	require.NoError(t, err)
	assert.Equal(t, secret, again)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadOrCreateDeviceSecret_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := loadOrCreateDeviceSecret(path)
	assert.Error(t, err)
}
