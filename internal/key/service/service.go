package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"authplane/backend/internal/key/domain"
	"authplane/backend/internal/security"
)

// ErrUnknownPurpose is returned for key operations against a purpose the
// service does not manage.
var ErrUnknownPurpose = errors.New("unknown key purpose")

// Repository is the minimal key repository needed by the key service.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Key, error)
	GetCurrentByPurpose(ctx context.Context, purpose domain.KeyPurpose) (*domain.Key, error)
	Create(ctx context.Context, k *domain.Key) error
	DeleteOlderThan(ctx context.Context, purpose domain.KeyPurpose, cutoff time.Time) (int64, error)
}

// Material is a decrypted signing key ready for use. It lives on the stack of
// one signing call and is never cached.
type Material struct {
	KID           string
	Purpose       domain.KeyPurpose
	PrivateKeyPEM string
	PublicKeyPEM  string
}

// Service manages the signing key lifecycle: lazy bootstrap, monthly rotation
// and retention sweeps. Private halves are encrypted with the master secret
// before they reach the database.
type Service struct {
	repo      Repository
	cipher    *security.KeyCipher
	retention map[domain.KeyPurpose]time.Duration
	group     singleflight.Group
	log       zerolog.Logger
	now       func() time.Time
}

// RetentionFromDays builds the retention map from per-purpose day counts.
func RetentionFromDays(access, refresh, confirm, reset int) map[domain.KeyPurpose]time.Duration {
	day := 24 * time.Hour
	return map[domain.KeyPurpose]time.Duration{
		domain.KeyPurposeAccess:        time.Duration(access) * day,
		domain.KeyPurposeRefresh:       time.Duration(refresh) * day,
		domain.KeyPurposeConfirmation:  time.Duration(confirm) * day,
		domain.KeyPurposeResetPassword: time.Duration(reset) * day,
	}
}

// NewService returns a key service with the given dependencies. retention maps
// each purpose to how long rotated-out keys stay resolvable.
func NewService(repo Repository, cipher *security.KeyCipher, retention map[domain.KeyPurpose]time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		cipher:    cipher,
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

// CurrentKey returns the newest active key for the purpose, decrypted and
// ready to sign with. When no key exists yet it provisions one; concurrent
// first callers share a single generation per purpose.
func (s *Service) CurrentKey(ctx context.Context, purpose domain.KeyPurpose) (*Material, error) {
	if !purpose.Valid() {
		return nil, ErrUnknownPurpose
	}
	k, err := s.repo.GetCurrentByPurpose(ctx, purpose)
	if err != nil {
		return nil, fmt.Errorf("get current key: %w", err)
	}
	if k == nil {
		v, err, _ := s.group.Do(string(purpose), func() (any, error) {
			// Re-check under the flight: another process may have won the race.
			existing, err := s.repo.GetCurrentByPurpose(ctx, purpose)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return existing, nil
			}
			return s.AddKeyPair(ctx, purpose)
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap key: %w", err)
		}
		k = v.(*domain.Key)
	}
	return s.material(k)
}

// KeyByID resolves a key by its kid for verification. Soft-deleted keys still
// resolve; missing ones return nil.
func (s *Service) KeyByID(ctx context.Context, id string) (*domain.Key, error) {
	return s.repo.GetByID(ctx, id)
}

// AddKeyPair generates a fresh RSA keypair for the purpose, encrypts the
// private half and persists it as the new current key.
func (s *Service) AddKeyPair(ctx context.Context, purpose domain.KeyPurpose) (*domain.Key, error) {
	if !purpose.Valid() {
		return nil, ErrUnknownPurpose
	}
	privPEM, pubPEM, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	encrypted, err := s.cipher.Encrypt([]byte(privPEM))
	if err != nil {
		return nil, fmt.Errorf("encrypt private key: %w", err)
	}
	k := &domain.Key{
		ID:                  uuid.NewString(),
		Purpose:             purpose,
		EncryptedPrivateKey: encrypted,
		PublicKey:           pubPEM,
		Active:              true,
		CreatedAt:           s.now().UTC(),
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, k); err != nil {
		return nil, fmt.Errorf("persist key: %w", err)
	}
	s.log.Info().Str("kid", k.ID).Str("purpose", string(purpose)).Msg("provisioned signing key")
	return k, nil
}

// Rotate provisions a new current key for every purpose. Tokens signed by the
// previous keys keep verifying until the retention sweep removes them.
func (s *Service) Rotate(ctx context.Context) error {
	for _, purpose := range domain.Purposes() {
		if _, err := s.AddKeyPair(ctx, purpose); err != nil {
			return fmt.Errorf("rotate %s: %w", purpose, err)
		}
	}
	return nil
}

// RemoveOldKeys hard-deletes keys older than each purpose's retention window.
// Retention exceeds the longest token lifetime per purpose, so no live token
// loses its verification key.
func (s *Service) RemoveOldKeys(ctx context.Context) error {
	for purpose, keep := range s.retention {
		cutoff := s.now().UTC().Add(-keep)
		n, err := s.repo.DeleteOlderThan(ctx, purpose, cutoff)
		if err != nil {
			return fmt.Errorf("sweep %s: %w", purpose, err)
		}
		if n > 0 {
			s.log.Info().Str("purpose", string(purpose)).Int64("removed", n).Msg("swept expired signing keys")
		}
	}
	return nil
}

func (s *Service) material(k *domain.Key) (*Material, error) {
	privPEM, err := s.cipher.Decrypt(k.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key %s: %w", k.ID, err)
	}
	return &Material{
		KID:           k.ID,
		Purpose:       k.Purpose,
		PrivateKeyPEM: string(privPEM),
		PublicKeyPEM:  k.PublicKey,
	}, nil
}
