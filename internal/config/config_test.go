package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.JWTIssuer != "authplane" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "authplane")
	}
	if cfg.JWTAudience != "authplane-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "authplane-api")
	}
	if cfg.JWTAccessTTL != "15m" {
		t.Errorf("JWTAccessTTL = %q, want %q", cfg.JWTAccessTTL, "15m")
	}
	if cfg.JWTRefreshTTL != "168h" {
		t.Errorf("JWTRefreshTTL = %q, want %q", cfg.JWTRefreshTTL, "168h")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want %q", cfg.RedisAddr, "localhost:6379")
	}
	if cfg.KeyRotationCron != "0 0 1 * *" {
		t.Errorf("KeyRotationCron = %q, want monthly default", cfg.KeyRotationCron)
	}
	if cfg.KeyRetentionAccessDays != 31 {
		t.Errorf("KeyRetentionAccessDays = %d, want 31", cfg.KeyRetentionAccessDays)
	}
	if cfg.KeyRetentionRefreshDays != 61 {
		t.Errorf("KeyRetentionRefreshDays = %d, want 61", cfg.KeyRetentionRefreshDays)
	}
	if cfg.RefreshCookieName != "refreshToken" {
		t.Errorf("RefreshCookieName = %q, want %q", cfg.RefreshCookieName, "refreshToken")
	}
}

func TestLoad_MasterKeyRequired(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when MASTER_KEY is unset")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.RedisAddr != "redis:6380" {
		t.Errorf("RedisAddr = %q, want %q", cfg.RedisAddr, "redis:6380")
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // defaults to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("MASTER_KEY", "test-master-secret")
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_RetentionMustCoverRefreshTTL(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")
	os.Setenv("KEY_RETENTION_REFRESH_DAYS", "5")
	os.Setenv("JWT_REFRESH_TTL", "168h") // 7d > 5d retention

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject refresh retention shorter than the refresh TTL")
	}
}

func TestLoad_RetentionMustBePositive(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")
	os.Setenv("KEY_RETENTION_ACCESS_DAYS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject zero retention days")
	}
}

func TestAccessTTL_ValidDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")
	os.Setenv("JWT_ACCESS_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.AccessTTL(); ttl != 30*time.Minute {
		t.Errorf("AccessTTL = %v, want %v", ttl, 30*time.Minute)
	}
}

func TestAccessTTL_InvalidDurationFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")
	os.Setenv("JWT_ACCESS_TTL", "invalid")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.AccessTTL(); ttl != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want %v (default)", ttl, 15*time.Minute)
	}
}

func TestRefreshTTL_ValidDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")
	os.Setenv("JWT_REFRESH_TTL", "336h") // 14 days
	os.Setenv("KEY_RETENTION_REFRESH_DAYS", "61")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.RefreshTTL(); ttl != 14*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want %v", ttl, 14*24*time.Hour)
	}
}

func TestConfirmAndResetTTLDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.ConfirmTTL(); ttl != 24*time.Hour {
		t.Errorf("ConfirmTTL = %v, want %v", ttl, 24*time.Hour)
	}
	if ttl := cfg.ResetTTL(); ttl != 30*time.Minute {
		t.Errorf("ResetTTL = %v, want %v", ttl, 30*time.Minute)
	}
}

func TestMailKafkaBrokersList(t *testing.T) {
	os.Clearenv()
	os.Setenv("MASTER_KEY", "test-master-secret")
	os.Setenv("MAIL_KAFKA_BROKERS", "localhost:9092, kafka2:9092 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	brokers := cfg.MailKafkaBrokersList()
	if len(brokers) != 2 {
		t.Fatalf("brokers = %v, want 2 entries", brokers)
	}
	if brokers[0] != "localhost:9092" || brokers[1] != "kafka2:9092" {
		t.Errorf("brokers = %v", brokers)
	}
}
