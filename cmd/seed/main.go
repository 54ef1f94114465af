// seed inserts development sample data for local testing and provisions one
// active signing key per purpose. Idempotent: skips inserts if the dev user
// (dev@example.com) already exists and keys that are already current.
package main

import (
	"context"
	"log"
	"time"

	"github.com/rs/zerolog"

	"authplane/backend/internal/config"
	"authplane/backend/internal/db"
	keydomain "authplane/backend/internal/key/domain"
	keyrepository "authplane/backend/internal/key/repository"
	keyservice "authplane/backend/internal/key/service"
	"authplane/backend/internal/security"
	userdomain "authplane/backend/internal/user/domain"
	userrepository "authplane/backend/internal/user/repository"
)

const (
	devUserID    = "8f14e45f-ceea-4e7a-9c7a-000000000001"
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()

	cipher, err := security.NewKeyCipher(cfg.MasterKey)
	if err != nil {
		log.Fatalf("master key: %v", err)
	}
	keys := keyservice.NewService(keyrepository.NewPostgresRepository(conn), cipher, keyservice.RetentionFromDays(
		cfg.KeyRetentionAccessDays, cfg.KeyRetentionRefreshDays,
		cfg.KeyRetentionConfirmDays, cfg.KeyRetentionResetDays), zerolog.Nop())
	for _, purpose := range keydomain.Purposes() {
		if _, err := keys.CurrentKey(ctx, purpose); err != nil {
			log.Fatalf("provision %s: %v", purpose, err)
		}
	}
	log.Println("seed: signing keys ready")

	users := userrepository.NewPostgresRepository(conn)
	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("look up dev user: %v", err)
	}
	if existing != nil {
		log.Println("seed: dev user already present, skipping")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash dev password: %v", err)
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:           devUserID,
		Email:        devUserEmail,
		Name:         "Dev User",
		PasswordHash: hash,
		Role:         userdomain.UserRoleAdmin,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	log.Printf("seed: created %s (password %s)", devUserEmail, devPassword)
}
