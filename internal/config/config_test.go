package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	key := "TEST_ENV_STRING"
	val := "test_value"
	os.Setenv(key, val)
	defer os.Unsetenv(key)

	if got := getEnvString(key, "default"); got != val {
		t.Errorf("getEnvString() = %q, want %q", got, val)
	}

	if got := getEnvString("NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_ENV_DURATION"

	tests := []struct {
		name       string
		envVal     string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"ValidDuration", "1m", time.Second, time.Minute},
		{"ValidSeconds", "60", time.Second, 60 * time.Second},
		{"Invalid", "invalid", time.Second, time.Second},
		{"Empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(key, tt.envVal)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnvDuration(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_ENV_BOOL"
	defer os.Unsetenv(key)

	os.Setenv(key, "false")
	if got := getEnvBool(key, true); got != false {
		t.Errorf("getEnvBool() = %v, want false", got)
	}

	os.Unsetenv(key)
	if got := getEnvBool(key, true); got != true {
		t.Errorf("getEnvBool() with unset var = %v, want true", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_ENV_INT"
	defer os.Unsetenv(key)

	os.Setenv(key, "42")
	if got := getEnvInt(key, 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}

	os.Setenv(key, "not-a-number")
	if got := getEnvInt(key, 7); got != 7 {
		t.Errorf("getEnvInt() with invalid value = %d, want fallback 7", got)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir")

	if err := ensureDir(path); err != nil {
		t.Fatalf("ensureDir() failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("directory was not created")
	}

	if err := ensureDir(""); err != nil {
		t.Error("ensureDir(\"\") should not error")
	}
}

func TestGetDefaultPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Skipping test because user home dir cannot be found")
	}

	dbPath := getDefaultDatabasePath()
	expectedDb := filepath.Join(home, ".config", "antigravity-proxy", "usage.db")
	if dbPath != expectedDb {
		t.Errorf("getDefaultDatabasePath() = %q, want %q", dbPath, expectedDb)
	}

	accPath := getDefaultAccountsPath()
	expectedAcc := filepath.Join(home, ".config", "antigravity-proxy", "accounts.json")
	if accPath != expectedAcc {
		t.Errorf("getDefaultAccountsPath() = %q, want %q", accPath, expectedAcc)
	}

	usagePath := getDefaultUsageHistoryPath()
	expectedUsage := filepath.Join(home, ".config", "antigravity-proxy", "usage-history.json")
	if usagePath != expectedUsage {
		t.Errorf("getDefaultUsageHistoryPath() = %q, want %q", usagePath, expectedUsage)
	}
}

func TestGetEnvPaths(t *testing.T) {
	paths := getEnvPaths()
	if len(paths) == 0 {
		t.Error("getEnvPaths() returned empty list")
	}

	cwd, _ := os.Getwd()
	found := false
	for _, p := range paths {
		if p == filepath.Join(cwd, ".env") {
			found = true
			break
		}
	}
	if !found {
		t.Error("getEnvPaths() missing current directory .env")
	}
}

func TestLoadSettingsFile_Missing(t *testing.T) {
	s := loadSettingsFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if s.orDefaultShaperMinDelayMs() != defaultShaperMinDelayMs {
		t.Errorf("expected default shaper min delay when settings file is missing")
	}
}

func TestLoadSettingsFile_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "shaperMinDelayMs: 1000\nrequestThrottlingEnabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := loadSettingsFile(path)
	if s.orDefaultShaperMinDelayMs() != 1000 {
		t.Errorf("shaperMinDelayMs = %d, want 1000", s.orDefaultShaperMinDelayMs())
	}
	if s.orDefaultThrottling() != false {
		t.Error("requestThrottlingEnabled should be false")
	}
}

func TestLoad(t *testing.T) {
	os.Setenv("GOOGLE_CLIENT_ID", "test-id")
	os.Setenv("GOOGLE_CLIENT_SECRET", "test-secret")
	defer os.Unsetenv("GOOGLE_CLIENT_ID")
	defer os.Unsetenv("GOOGLE_CLIENT_SECRET")

	tmpDir := t.TempDir()
	os.Setenv("DATABASE_PATH", filepath.Join(tmpDir, "db.sqlite"))
	os.Setenv("ACCOUNTS_PATH", filepath.Join(tmpDir, "accounts.json"))
	defer os.Unsetenv("DATABASE_PATH")
	defer os.Unsetenv("ACCOUNTS_PATH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GoogleClientID != "test-id" {
		t.Errorf("GoogleClientID = %q, want %q", cfg.GoogleClientID, "test-id")
	}
	if cfg.ShaperMinDelayMs != defaultShaperMinDelayMs {
		t.Errorf("ShaperMinDelayMs = %d, want %d", cfg.ShaperMinDelayMs, defaultShaperMinDelayMs)
	}
	if !cfg.RequestThrottlingEnabled {
		t.Error("RequestThrottlingEnabled should default to true")
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	os.Unsetenv("GOOGLE_CLIENT_ID")
	os.Unsetenv("GOOGLE_CLIENT_SECRET")

	tmpDir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(tmpDir)

	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	_, err := Load()
	if err == nil {
		t.Error("Load() should fail when credentials are missing")
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	content := "GOOGLE_CLIENT_ID=env-id\nGOOGLE_CLIENT_SECRET=env-secret"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(tmpDir)

	os.Unsetenv("GOOGLE_CLIENT_ID")
	os.Unsetenv("GOOGLE_CLIENT_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GoogleClientID != "env-id" {
		t.Errorf("GoogleClientID = %q, want env-id", cfg.GoogleClientID)
	}
}
