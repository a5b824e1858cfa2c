package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fieldlink/fieldlink-go/internal/common"
)

const deviceSecretSize = 32

// loadOrCreateDeviceSecret reads the per-device store secret, generating
// and persisting one on first run. The file stands in for a hardware-backed
// keystore on a real device.
func loadOrCreateDeviceSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) != deviceSecretSize {
			return nil, fmt.Errorf("device secret %s is corrupt", path)
		}
		return secret, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read device secret: %w", err)
	}

	secret = common.GenerateRandByteArray(deviceSecretSize)
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("write device secret: %w", err)
	}
	return secret, nil
}
