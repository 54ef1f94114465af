package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"authplane/backend/internal/key/domain"
	"authplane/backend/internal/security"
)

type memKeyRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Key
}

func (r *memKeyRepo) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memKeyRepo) GetCurrentByPurpose(ctx context.Context, purpose domain.KeyPurpose) (*domain.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.Key
	for _, k := range r.m {
		if k.Purpose != purpose || !k.Active || k.DeletedAt != nil {
			continue
		}
		if newest == nil || k.CreatedAt.After(newest.CreatedAt) {
			newest = k
		}
	}
	return newest, nil
}

func (r *memKeyRepo) Create(ctx context.Context, k *domain.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[k.ID] = k
	return nil
}

func (r *memKeyRepo) DeleteOlderThan(ctx context.Context, purpose domain.KeyPurpose, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, k := range r.m {
		if k.Purpose == purpose && k.CreatedAt.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *memKeyRepo) count(purpose domain.KeyPurpose) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.m {
		if k.Purpose == purpose {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T, repo *memKeyRepo) *Service {
	t.Helper()
	cipher, err := security.NewKeyCipher("test-master-secret")
	if err != nil {
		t.Fatalf("NewKeyCipher: %v", err)
	}
	retention := map[domain.KeyPurpose]time.Duration{
		domain.KeyPurposeAccess:        31 * 24 * time.Hour,
		domain.KeyPurposeRefresh:       61 * 24 * time.Hour,
		domain.KeyPurposeConfirmation:  31 * 24 * time.Hour,
		domain.KeyPurposeResetPassword: 31 * 24 * time.Hour,
	}
	return NewService(repo, cipher, retention, zerolog.Nop())
}

func TestCurrentKeyBootstraps(t *testing.T) {
	repo := &memKeyRepo{m: map[string]*domain.Key{}}
	svc := newTestService(t, repo)

	mat, err := svc.CurrentKey(context.Background(), domain.KeyPurposeAccess)
	if err != nil {
		t.Fatalf("CurrentKey: %v", err)
	}
	if mat.KID == "" {
		t.Fatal("expected a key id")
	}
	if _, err := security.ParsePrivateKey(mat.PrivateKeyPEM); err != nil {
		t.Fatalf("returned private key does not parse: %v", err)
	}
	if _, err := security.ParsePublicKey(mat.PublicKeyPEM); err != nil {
		t.Fatalf("returned public key does not parse: %v", err)
	}
	if got := repo.count(domain.KeyPurposeAccess); got != 1 {
		t.Fatalf("expected 1 provisioned key, got %d", got)
	}
}

func TestCurrentKeyHalvesMatch(t *testing.T) {
	repo := &memKeyRepo{m: map[string]*domain.Key{}}
	svc := newTestService(t, repo)

	mat, err := svc.CurrentKey(context.Background(), domain.KeyPurposeRefresh)
	if err != nil {
		t.Fatalf("CurrentKey: %v", err)
	}
	priv, err := security.ParsePrivateKey(mat.PrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := security.ParsePublicKey(mat.PublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if !priv.PublicKey.Equal(pub) {
		t.Fatal("decrypted private half does not pair with the stored public half")
	}
}

func TestCurrentKeyConcurrentBootstrapProvisionsOnce(t *testing.T) {
	repo := &memKeyRepo{m: map[string]*domain.Key{}}
	svc := newTestService(t, repo)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.CurrentKey(context.Background(), domain.KeyPurposeRefresh)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CurrentKey: %v", err)
		}
	}
	if got := repo.count(domain.KeyPurposeRefresh); got != 1 {
		t.Fatalf("expected exactly 1 key after concurrent bootstrap, got %d", got)
	}
}

func TestCurrentKeyReturnsNewestAfterRotation(t *testing.T) {
	repo := &memKeyRepo{m: map[string]*domain.Key{}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	old, err := svc.AddKeyPair(ctx, domain.KeyPurposeAccess)
	if err != nil {
		t.Fatalf("AddKeyPair: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	fresh, err := svc.AddKeyPair(ctx, domain.KeyPurposeAccess)
	if err != nil {
		t.Fatalf("AddKeyPair: %v", err)
	}

	mat, err := svc.CurrentKey(ctx, domain.KeyPurposeAccess)
	if err != nil {
		t.Fatalf("CurrentKey: %v", err)
	}
	if mat.KID != fresh.ID {
		t.Fatalf("current key = %s, want newest %s", mat.KID, fresh.ID)
	}
	// The rotated-out key stays resolvable by id for verification.
	k, err := svc.KeyByID(ctx, old.ID)
	if err != nil {
		t.Fatalf("KeyByID: %v", err)
	}
	if k == nil {
		t.Fatal("rotated-out key no longer resolvable")
	}
}

func TestRotateCoversAllPurposes(t *testing.T) {
	repo := &memKeyRepo{m: map[string]*domain.Key{}}
	svc := newTestService(t, repo)

	if err := svc.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	for _, purpose := range domain.Purposes() {
		if got := repo.count(purpose); got != 1 {
			t.Fatalf("purpose %s: expected 1 key, got %d", purpose, got)
		}
	}
}

func TestRemoveOldKeysHonorsRetention(t *testing.T) {
	repo := &memKeyRepo{m: map[string]*domain.Key{}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	now := time.Now().UTC()
	repo.m["stale"] = &domain.Key{
		ID: "stale", Purpose: domain.KeyPurposeAccess,
		EncryptedPrivateKey: []byte{1}, PublicKey: "x",
		CreatedAt: now.Add(-32 * 24 * time.Hour),
	}
	repo.m["recent"] = &domain.Key{
		ID: "recent", Purpose: domain.KeyPurposeAccess, Active: true,
		EncryptedPrivateKey: []byte{1}, PublicKey: "x",
		CreatedAt: now.Add(-10 * 24 * time.Hour),
	}

	if err := svc.RemoveOldKeys(ctx); err != nil {
		t.Fatalf("RemoveOldKeys: %v", err)
	}
	if k, _ := repo.GetByID(ctx, "stale"); k != nil {
		t.Fatal("key past retention should be deleted")
	}
	if k, _ := repo.GetByID(ctx, "recent"); k == nil {
		t.Fatal("key within retention should survive")
	}
}

func TestCurrentKeyUnknownPurpose(t *testing.T) {
	repo := &memKeyRepo{m: map[string]*domain.Key{}}
	svc := newTestService(t, repo)
	if _, err := svc.CurrentKey(context.Background(), "banana"); err == nil {
		t.Fatal("expected error for unknown purpose")
	}
}
