// Package config loads server settings from an optional HCL file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/zclconf/go-cty/cty"
)

// DefaultOwnerID is used when a request carries no X-User-ID header
const DefaultOwnerID = "default-user-id"

// Config represents the server configuration.
// An empty DatabaseURL selects the in-memory stores.
type Config struct {
	DatabaseURL     string `hcl:"database_url,optional"`
	Port            string `hcl:"port,optional"`
	LogLevel        string `hcl:"log_level,optional"`
	ErrorSampleRate int    `hcl:"error_sample_rate,optional"`
	UploadMaxBytes  int64  `hcl:"upload_max_bytes,optional"`
	RuleCacheTTL    string `hcl:"rule_cache_ttl,optional"`
	AutoMigrate     bool   `hcl:"auto_migrate,optional"`
	DefaultOwner    string `hcl:"default_owner,optional"`
	RequestTimeout  string `hcl:"request_timeout,optional"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		LogLevel:        "INFO",
		ErrorSampleRate: 100,
		UploadMaxBytes:  10 << 20,
		RuleCacheTTL:    "5m",
		DefaultOwner:    DefaultOwnerID,
		RequestTimeout:  "60s",
	}
}

// Load builds the configuration from defaults, the HCL file at path (if
// path is non-empty) and environment overrides, then validates it
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode config: %s", diags.Error())
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	if v, ok := lookup("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Port = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("ERROR_SAMPLE_RATE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ERROR_SAMPLE_RATE: %w", err)
		}
		c.ErrorSampleRate = n
	}
	if v, ok := lookup("UPLOAD_MAX_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("UPLOAD_MAX_BYTES: %w", err)
		}
		c.UploadMaxBytes = n
	}
	if v, ok := lookup("RULE_CACHE_TTL"); ok && v != "" {
		c.RuleCacheTTL = v
	}
	if v, ok := lookup("AUTO_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_MIGRATE: %w", err)
		}
		c.AutoMigrate = b
	}
	return nil
}

// Validate checks the configuration for values the server cannot use
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	} else if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid TCP port", c.Port))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ErrorSampleRate < 1 {
		errs = append(errs, fmt.Errorf("error_sample_rate must be at least 1, got %d", c.ErrorSampleRate))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("upload_max_bytes must be positive, got %d", c.UploadMaxBytes))
	}
	if _, err := parseDuration("rule_cache_ttl", c.RuleCacheTTL); err != nil {
		errs = append(errs, err)
	}
	if d, err := parseDuration("request_timeout", c.RequestTimeout); err != nil {
		errs = append(errs, err)
	} else if d <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if strings.TrimSpace(c.DefaultOwner) == "" {
		errs = append(errs, errors.New("default_owner is required"))
	}
	if c.AutoMigrate && c.DatabaseURL == "" {
		errs = append(errs, errors.New("auto_migrate requires database_url"))
	}

	return errors.Join(errs...)
}

// CacheTTL returns the parsed rule cache TTL. Zero disables expiry.
func (c *Config) CacheTTL() time.Duration {
	d, _ := parseDuration("rule_cache_ttl", c.RuleCacheTTL)
	return d
}

// Timeout returns the parsed per-request timeout
func (c *Config) Timeout() time.Duration {
	d, _ := parseDuration("request_timeout", c.RequestTimeout)
	return d
}

func parseDuration(name, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// Export writes the configuration to the specified file in HCL format
func Export(path string, cfg *Config) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("database_url", cty.StringVal(cfg.DatabaseURL))
	root.SetAttributeValue("port", cty.StringVal(cfg.Port))
	root.SetAttributeValue("log_level", cty.StringVal(cfg.LogLevel))
	root.SetAttributeValue("error_sample_rate", cty.NumberIntVal(int64(cfg.ErrorSampleRate)))
	root.SetAttributeValue("upload_max_bytes", cty.NumberIntVal(cfg.UploadMaxBytes))
	root.SetAttributeValue("rule_cache_ttl", cty.StringVal(cfg.RuleCacheTTL))
	root.SetAttributeValue("auto_migrate", cty.BoolVal(cfg.AutoMigrate))
	root.SetAttributeValue("default_owner", cty.StringVal(cfg.DefaultOwner))
	root.SetAttributeValue("request_timeout", cty.StringVal(cfg.RequestTimeout))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(f.Bytes()); err != nil {
		return fmt.Errorf("failed to write config to file: %w", err)
	}
	return nil
}
