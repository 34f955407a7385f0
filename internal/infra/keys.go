package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

const (
	keyFileName = ".key"
	keySize     = 32 // SQLCipher raw key

	keyringService = "kioskd"
	keyringAccount = "store-key"
)

// FileKeyProvider keeps the store key base64-encoded in a hidden 0600 file.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, keyFileName)}
}

// GetKey reads the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeKey(string(encoded))
}

// StoreKey writes the key file, creating the data directory if needed.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if err := checkKeySize(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// KeyringKeyProvider keeps the store key in the session secret service.
type KeyringKeyProvider struct {
	service string
	account string
}

// NewKeyringKeyProvider creates a provider under the kioskd service name.
func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{service: keyringService, account: keyringAccount}
}

// GetKey reads the key from the keyring.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	s, err := keyring.Get(p.service, p.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("keyring key: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	return decodeKey(s)
}

// StoreKey writes the key to the keyring.
func (p *KeyringKeyProvider) StoreKey(key []byte) error {
	if err := checkKeySize(key); err != nil {
		return err
	}
	if err := keyring.Set(p.service, p.account, base64.StdEncoding.EncodeToString(key)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// KeyExists reports whether the keyring holds a key.
func (p *KeyringKeyProvider) KeyExists() bool {
	_, err := keyring.Get(p.service, p.account)
	return err == nil
}

// Available reports whether a secret service answers at all.
func (p *KeyringKeyProvider) Available() bool {
	_, err := keyring.Get(p.service, p.account)
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// SelectKeyProvider prefers the keyring and falls back to the key file when
// no secret service is reachable (headless or system mode). An existing key
// file always wins so a key never silently changes under the store.
func SelectKeyProvider(dataDir string, preferKeyring bool) domain.KeyProvider {
	file := NewFileKeyProvider(dataDir)
	if file.KeyExists() || !preferKeyring {
		return file
	}
	kr := NewKeyringKeyProvider()
	if kr.Available() {
		return kr
	}
	return file
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the provider's key, generating and storing one on first use.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if err := checkKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

func checkKeySize(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return nil
}

var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*KeyringKeyProvider)(nil)
)
