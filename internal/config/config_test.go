package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"GMLC_DATA_DIR", "GMLC_HTTP_PORT", "GMLC_LOG_LEVEL", "GMLC_LOG_FORMAT",
		"GMLC_CDR_FILE", "GMLC_CDR_DSN", "GMLC_JWT_SECRET", "GMLC_ADMIN_USER",
		"GMLC_ADMIN_PASSWORD_HASH", "GMLC_DIALOG_TIMEOUT", "GMLC_CALLBACK_TIMEOUT",
		"GMLC_GT", "GMLC_HLR_GT", "GMLC_MSC_GT",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if want := filepath.Join(defaultDataDir, "cdr.log"); cfg.CDRFile != want {
		t.Errorf("CDRFile = %q, want %q", cfg.CDRFile, want)
	}
	if cfg.DialogTimeout() != 20*time.Second {
		t.Errorf("DialogTimeout = %v, want 20s", cfg.DialogTimeout())
	}
	if cfg.HLRAddress != defaultHLRAddress {
		t.Errorf("HLRAddress = %q, want %q", cfg.HLRAddress, defaultHLRAddress)
	}
	if cfg.AdminEnabled() {
		t.Error("AdminEnabled = true, want false with no admin settings")
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("GMLC_HTTP_PORT", "9090")
	t.Setenv("GMLC_DATA_DIR", "/tmp/gmlc-test")
	t.Setenv("GMLC_HLR_GT", "31628100001")

	cfg, err := load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/gmlc-test" {
		t.Errorf("DataDir = %q, want /tmp/gmlc-test", cfg.DataDir)
	}
	if cfg.HLRAddress != "31628100001" {
		t.Errorf("HLRAddress = %q, want 31628100001", cfg.HLRAddress)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	clearEnv(t)
	t.Setenv("GMLC_HTTP_PORT", "9090")
	t.Setenv("GMLC_LOG_LEVEL", "debug")

	cfg, err := load([]string{"--http-port", "3000", "--log-level", "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidGlobalTitle(t *testing.T) {
	clearEnv(t)
	if _, err := load([]string{"--hlr-gt", "59899a231"}); err == nil {
		t.Fatal("expected error for non-numeric hlr-gt, got nil")
	}
}

func TestValidatePartialAdminConfig(t *testing.T) {
	clearEnv(t)
	if _, err := load([]string{"--admin-user", "ops"}); err == nil {
		t.Fatal("expected error when only admin-user is set, got nil")
	}
}

func TestJWTSecretBytes(t *testing.T) {
	clearEnv(t)
	secret := "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"
	cfg, err := load([]string{
		"--jwt-secret", secret,
		"--admin-user", "ops",
		"--admin-password-hash", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("len(key) = %d, want 32", len(key))
	}
	if !cfg.AdminEnabled() {
		t.Error("AdminEnabled = false, want true")
	}
}
