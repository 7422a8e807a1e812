package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func env(values map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}
}

// clearEnv blanks the variables Load reads so the host environment does not leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "PORT", "LOG_LEVEL", "ERROR_SAMPLE_RATE", "UPLOAD_MAX_BYTES", "RULE_CACHE_TTL", "AUTO_MIGRATE"} {
		t.Setenv(k, "")
	}
}

// TestDefaultConfigIsValid verifies defaults pass validation
func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL())
	}
	if cfg.Timeout() != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.Timeout())
	}
}

// TestLoadFile verifies HCL values override defaults
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.hcl")
	content := `
port              = "9090"
log_level         = "debug"
upload_max_bytes  = 2048
rule_cache_ttl    = "30s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != "9090" || cfg.LogLevel != "debug" || cfg.UploadMaxBytes != 2048 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.CacheTTL() != 30*time.Second {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL())
	}
	if cfg.ErrorSampleRate != 100 {
		t.Errorf("Unset attributes should keep defaults, got sample rate %d", cfg.ErrorSampleRate)
	}
}

// TestLoadMissingFile verifies a missing file is an error
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.hcl")); err == nil {
		t.Error("Expected error for missing file")
	}
}

// TestLoadBadSyntax verifies parse errors surface
func TestLoadBadSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hcl")
	if err := os.WriteFile(path, []byte(`port = `), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

// TestApplyEnv verifies environment overrides
func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(env(map[string]string{
		"DATABASE_URL":      "postgres://localhost/sqlgen",
		"PORT":              "3000",
		"ERROR_SAMPLE_RATE": "1",
		"UPLOAD_MAX_BYTES":  "1024",
		"AUTO_MIGRATE":      "true",
	}))
	if err != nil {
		t.Fatalf("applyEnv() failed: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/sqlgen" || cfg.Port != "3000" || !cfg.AutoMigrate {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.ErrorSampleRate != 1 || cfg.UploadMaxBytes != 1024 {
		t.Errorf("Unexpected numeric overrides: %+v", cfg)
	}

	if err := cfg.applyEnv(env(map[string]string{"AUTO_MIGRATE": "maybe"})); err == nil {
		t.Error("Expected error for invalid AUTO_MIGRATE")
	}
}

// TestValidate verifies each rejected value
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"port out of range", func(c *Config) { c.Port = "70000" }},
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }},
		{"zero sample rate", func(c *Config) { c.ErrorSampleRate = 0 }},
		{"zero upload size", func(c *Config) { c.UploadMaxBytes = 0 }},
		{"bad ttl", func(c *Config) { c.RuleCacheTTL = "soon" }},
		{"negative ttl", func(c *Config) { c.RuleCacheTTL = "-1s" }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = "0s" }},
		{"blank owner", func(c *Config) { c.DefaultOwner = " " }},
		{"migrate without database", func(c *Config) { c.AutoMigrate = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

// TestExportRoundTrip verifies an exported file loads back
func TestExportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.hcl")
	cfg := DefaultConfig()
	cfg.Port = "8181"
	cfg.RuleCacheTTL = "1m"

	if err := Export(path, cfg); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	clearEnv(t)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Port != "8181" || loaded.RuleCacheTTL != "1m" || loaded.DefaultOwner != DefaultOwnerID {
		t.Errorf("Unexpected round-trip config: %+v", loaded)
	}
}
