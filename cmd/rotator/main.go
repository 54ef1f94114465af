// rotator runs the scheduled signing key rotation and retention sweep.
// Set DATABASE_URL and MASTER_KEY; KEY_ROTATION_CRON controls the cadence
// (monthly by default).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"authplane/backend/internal/config"
	"authplane/backend/internal/db"
	keyrepository "authplane/backend/internal/key/repository"
	keyservice "authplane/backend/internal/key/service"
	"authplane/backend/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("rotator: DATABASE_URL is required")
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "rotator").Logger()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	cipher, err := security.NewKeyCipher(cfg.MasterKey)
	if err != nil {
		log.Fatalf("master key: %v", err)
	}
	retention := keyservice.RetentionFromDays(
		cfg.KeyRetentionAccessDays, cfg.KeyRetentionRefreshDays,
		cfg.KeyRetentionConfirmDays, cfg.KeyRetentionResetDays)
	keys := keyservice.NewService(keyrepository.NewPostgresRepository(conn), cipher, retention, logger)

	// Sweep once on startup so a long-stopped rotator catches up without
	// waiting for the next scheduled run.
	if err := keys.RemoveOldKeys(context.Background()); err != nil {
		logger.Error().Err(err).Msg("startup retention sweep failed")
	}

	rotator := keyservice.NewRotator(keys, cfg.KeyRotationCron, logger)
	if err := rotator.Start(); err != nil {
		log.Fatalf("rotator: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("rotator: shutting down...")
	rotator.Stop()
}
