package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// CredentialHashKey is the secret-store key of the admin credential hash.
const CredentialHashKey = "admin_credential_hash"

// DefaultAttemptsPerMinute bounds credential guesses.
const DefaultAttemptsPerMinute = 5

// AdminAuthenticator verifies the local override credential against a
// bcrypt hash. The stored hash takes precedence over the configured one.
type AdminAuthenticator struct {
	secrets    domain.SecretStore
	staticHash string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewAdminAuthenticator creates an authenticator. secrets may be nil when
// only a configured hash is used.
func NewAdminAuthenticator(secrets domain.SecretStore, configuredHash string, attemptsPerMinute int, logger *zap.Logger) *AdminAuthenticator {
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = DefaultAttemptsPerMinute
	}
	return &AdminAuthenticator{
		secrets:    secrets,
		staticHash: configuredHash,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(attemptsPerMinute)), attemptsPerMinute),
		logger:     logger,
	}
}

// Verify checks a credential. Returns nil on success, ErrCredentialRejected
// on mismatch and ErrCredentialThrottled when attempts exceed the limit.
func (a *AdminAuthenticator) Verify(ctx context.Context, credential string) error {
	if !a.limiter.Allow() {
		a.logger.Warn("admin credential attempt throttled")
		return domain.ErrCredentialThrottled
	}

	hash, err := a.hash()
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)); err != nil {
		a.logger.Warn("admin credential rejected")
		return domain.ErrCredentialRejected
	}

	a.logger.Info("admin credential accepted")
	return nil
}

// SetCredential hashes and stores a new credential.
func (a *AdminAuthenticator) SetCredential(credential string) error {
	if a.secrets == nil {
		return fmt.Errorf("no secret store configured")
	}
	hash, err := HashCredential(credential)
	if err != nil {
		return err
	}
	return a.secrets.SetSecret(CredentialHashKey, hash)
}

// Configured reports whether any credential hash is available.
func (a *AdminAuthenticator) Configured() bool {
	_, err := a.hash()
	return err == nil
}

func (a *AdminAuthenticator) hash() (string, error) {
	if a.secrets != nil {
		h, err := a.secrets.GetSecret(CredentialHashKey)
		if err == nil && h != "" {
			return h, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("failed to read credential hash: %w", err)
		}
	}
	if a.staticHash != "" {
		return a.staticHash, nil
	}
	return "", domain.ErrCredentialNotConfigured
}

// HashCredential returns the bcrypt hash of a credential.
func HashCredential(credential string) (string, error) {
	if len(credential) < 4 {
		return "", fmt.Errorf("credential must be at least 4 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}
