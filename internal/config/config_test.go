package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
email:
  smtp:
    host: smtp.example.com
    port: 587
    from: no-reply@plant-station.com
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Name != "PlantStation" {
		t.Fatalf("server.name = %q, want %q", cfg.Server.Name, "PlantStation")
	}
	if cfg.Auth.ActivationTokenTTL != time.Hour {
		t.Fatalf("auth.activation_token_ttl = %s, want 1h", cfg.Auth.ActivationTokenTTL)
	}
	if cfg.Auth.ResetTokenTTL != 30*time.Minute {
		t.Fatalf("auth.reset_token_ttl = %s, want 30m", cfg.Auth.ResetTokenTTL)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	content := `
email:
  smtp:
    host: smtp.example.com
    port: 587
    from: no-reply@plant-station.com
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() error = nil, want missing jwt_secret error")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("Load() error = %v, want mention of jwt_secret", err)
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	content := `
auth:
  jwt_secret: "too-short"
email:
  smtp:
    host: smtp.example.com
    port: 587
    from: no-reply@plant-station.com
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() error = nil, want short jwt_secret error")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PLANTSTATION_JWT_SECRET", "fedcba9876543210fedcba9876543210")
	t.Setenv("PLANTSTATION_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "fedcba9876543210fedcba9876543210" {
		t.Fatalf("auth.jwt_secret = %q, want env override", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Fatalf("database.path = %q, want /tmp/override.db", cfg.Database.Path)
	}
}
