// Package credential keeps database secrets out of the config file by
// storing them in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "taskreminders"

// PostgresDSNKey is the keyring entry holding the Postgres connection string.
const PostgresDSNKey = "postgres-dsn"

// ErrNoDSN is returned when neither config nor keyring provides a DSN.
var ErrNoDSN = errors.New("no postgres dsn configured: set database.dsn or store one in the keyring")

// Vault reads and writes secrets in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// Open opens the system keyring, falling back to an encrypted file under
// configDir when no OS backend is available.
func Open(configDir string) (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(configDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("taskreminders-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an existing keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Get returns the secret stored under key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores value under key.
func (v *Vault) Set(key, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "task reminders " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes the secret stored under key.
func (v *Vault) Delete(key string) error {
	if err := v.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// PostgresDSN returns configured when set, otherwise the DSN stored in
// the vault. A nil vault only consults configured.
func PostgresDSN(configured string, v *Vault) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if v == nil {
		return "", ErrNoDSN
	}
	dsn, err := v.Get(PostgresDSNKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoDSN
	}
	if err != nil {
		return "", err
	}
	if dsn == "" {
		return "", ErrNoDSN
	}
	return dsn, nil
}
