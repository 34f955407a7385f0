package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

const (
	storeDBName = "kioskd.db"

	metaFirstActivation = "first_activation_done"
	metaLastUpdateCheck = "last_update_check"
)

// EncryptedStore holds the admin credential hash and the small amount of
// durable kiosk state in a SQLCipher encrypted SQLite database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only shows up on the first real query.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS secrets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// --- domain.SecretStore implementation ---

// GetSecret retrieves a secret by key.
func (s *EncryptedStore) GetSecret(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("secret %q: %w", key, domain.ErrNotFound)
	}
	return value, err
}

// SetSecret stores a secret.
func (s *EncryptedStore) SetSecret(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO secrets (key, value, created_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	return err
}

// DeleteSecret removes a secret.
func (s *EncryptedStore) DeleteSecret(key string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE key = ?`, key)
	return err
}

// --- domain.ActivationStore implementation ---

// FirstActivationDone reports whether the first activation has completed.
func (s *EncryptedStore) FirstActivationDone() (bool, error) {
	value, err := s.getMeta(metaFirstActivation)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// MarkFirstActivationDone sets the flag. It is never cleared.
func (s *EncryptedStore) MarkFirstActivationDone() error {
	return s.setMeta(metaFirstActivation, "1")
}

// --- domain.UpdateCheckStore implementation ---

// LastUpdateCheck returns the last successful update check, or the zero time.
func (s *EncryptedStore) LastUpdateCheck() (time.Time, error) {
	value, err := s.getMeta(metaLastUpdateCheck)
	if errors.Is(err, domain.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastUpdateCheck records an update check.
func (s *EncryptedStore) SetLastUpdateCheck(t time.Time) error {
	return s.setMeta(metaLastUpdateCheck, t.UTC().Format(time.RFC3339))
}

func (s *EncryptedStore) getMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return value, err
}

func (s *EncryptedStore) setMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ domain.SecretStore      = (*EncryptedStore)(nil)
	_ domain.ActivationStore  = (*EncryptedStore)(nil)
	_ domain.UpdateCheckStore = (*EncryptedStore)(nil)
)
