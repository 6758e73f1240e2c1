package config

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the GMLC server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir           string
	HTTPPort          int
	LogLevel          string
	LogFormat         string // log output format: "text" or "json"
	TLSCert           string
	TLSKey            string
	CDRFile           string // delimited CDR line sink; defaults to <data-dir>/cdr.log
	CDRDSN            string // postgres:// DSN for the CDR store; empty selects SQLite in data-dir
	JWTSecret         string // hex-encoded 32-byte secret for admin API tokens
	AdminUser         string // operator login for the admin API
	AdminPasswordHash string // argon2id encoded hash of the operator password
	DialogTimeoutSec  int    // seconds before an outstanding MAP invoke is timed out
	CallbackTimeout   int    // seconds allowed for a deferred-report callback delivery
	RateLimitRPS      int    // per-IP requests per second on the location endpoints (0 disables)
	RateLimitBurst    int
	GMLCAddress       string // GMLC SCCP global title
	HLRAddress        string // HLR SCCP global title
	MSCAddress        string // MSC/VLR SCCP global title
	GMLCSSN           int
	HLRSSN            int
	MSCSSN            int
	SimProfiles       string // optional JSON file of simulator subscriber profiles
}

// defaults
const (
	defaultDataDir        = "./data"
	defaultHTTPPort       = 8080
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultDialogTimeout  = 20
	defaultCallbackTO     = 10
	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100
	defaultGMLCAddress    = "598990"
	defaultHLRAddress     = "59899000231"
	defaultMSCAddress     = "5982123007"
	defaultGMLCSSN        = 145
	defaultHLRSSN         = 6
	defaultMSCSSN         = 8
)

// envPrefix is the prefix for all GMLC environment variables.
const envPrefix = "GMLC_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("gmlc", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the CDR store and sink")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to TLS private key file")
	fs.StringVar(&cfg.CDRFile, "cdr-file", "", "path of the delimited CDR line sink (default <data-dir>/cdr.log)")
	fs.StringVar(&cfg.CDRDSN, "cdr-dsn", "", "PostgreSQL DSN for the CDR store (empty selects SQLite in data-dir)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for admin API token signing")
	fs.StringVar(&cfg.AdminUser, "admin-user", "", "operator username for the admin API")
	fs.StringVar(&cfg.AdminPasswordHash, "admin-password-hash", "", "argon2id encoded hash of the operator password")
	fs.IntVar(&cfg.DialogTimeoutSec, "dialog-timeout", defaultDialogTimeout, "seconds before an outstanding MAP invoke is timed out")
	fs.IntVar(&cfg.CallbackTimeout, "callback-timeout", defaultCallbackTO, "seconds allowed for a deferred-report callback delivery")
	fs.IntVar(&cfg.RateLimitRPS, "rate-limit-rps", defaultRateLimitRPS, "per-IP requests per second on the location endpoints (0 disables)")
	fs.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", defaultRateLimitBurst, "per-IP burst size on the location endpoints")
	fs.StringVar(&cfg.GMLCAddress, "gmlc-gt", defaultGMLCAddress, "SCCP global title of this GMLC")
	fs.StringVar(&cfg.HLRAddress, "hlr-gt", defaultHLRAddress, "SCCP global title of the HLR")
	fs.StringVar(&cfg.MSCAddress, "msc-gt", defaultMSCAddress, "SCCP global title of the MSC/VLR")
	fs.IntVar(&cfg.GMLCSSN, "gmlc-ssn", defaultGMLCSSN, "SCCP subsystem number of this GMLC")
	fs.IntVar(&cfg.HLRSSN, "hlr-ssn", defaultHLRSSN, "SCCP subsystem number of the HLR")
	fs.IntVar(&cfg.MSCSSN, "msc-ssn", defaultMSCSSN, "SCCP subsystem number of the MSC/VLR")
	fs.StringVar(&cfg.SimProfiles, "sim-profiles", "", "JSON file of core-network simulator subscriber profiles")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if cfg.CDRFile == "" {
		cfg.CDRFile = filepath.Join(cfg.DataDir, "cdr.log")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":            envPrefix + "DATA_DIR",
		"http-port":           envPrefix + "HTTP_PORT",
		"log-level":           envPrefix + "LOG_LEVEL",
		"log-format":          envPrefix + "LOG_FORMAT",
		"tls-cert":            envPrefix + "TLS_CERT",
		"tls-key":             envPrefix + "TLS_KEY",
		"cdr-file":            envPrefix + "CDR_FILE",
		"cdr-dsn":             envPrefix + "CDR_DSN",
		"jwt-secret":          envPrefix + "JWT_SECRET",
		"admin-user":          envPrefix + "ADMIN_USER",
		"admin-password-hash": envPrefix + "ADMIN_PASSWORD_HASH",
		"dialog-timeout":      envPrefix + "DIALOG_TIMEOUT",
		"callback-timeout":    envPrefix + "CALLBACK_TIMEOUT",
		"rate-limit-rps":      envPrefix + "RATE_LIMIT_RPS",
		"rate-limit-burst":    envPrefix + "RATE_LIMIT_BURST",
		"gmlc-gt":             envPrefix + "GT",
		"hlr-gt":              envPrefix + "HLR_GT",
		"msc-gt":              envPrefix + "MSC_GT",
		"gmlc-ssn":            envPrefix + "SSN",
		"hlr-ssn":             envPrefix + "HLR_SSN",
		"msc-ssn":             envPrefix + "MSC_SSN",
		"sim-profiles":        envPrefix + "SIM_PROFILES",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "tls-cert":
			cfg.TLSCert = val
		case "tls-key":
			cfg.TLSKey = val
		case "cdr-file":
			cfg.CDRFile = val
		case "cdr-dsn":
			cfg.CDRDSN = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "admin-user":
			cfg.AdminUser = val
		case "admin-password-hash":
			cfg.AdminPasswordHash = val
		case "dialog-timeout":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.DialogTimeoutSec = v
			}
		case "callback-timeout":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.CallbackTimeout = v
			}
		case "rate-limit-rps":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RateLimitRPS = v
			}
		case "rate-limit-burst":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RateLimitBurst = v
			}
		case "gmlc-gt":
			cfg.GMLCAddress = val
		case "hlr-gt":
			cfg.HLRAddress = val
		case "msc-gt":
			cfg.MSCAddress = val
		case "gmlc-ssn":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.GMLCSSN = v
			}
		case "hlr-ssn":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HLRSSN = v
			}
		case "msc-ssn":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.MSCSSN = v
			}
		case "sim-profiles":
			cfg.SimProfiles = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	// TLS cert and key must both be set or both be empty.
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls-cert and tls-key must both be provided or both be omitted")
	}

	if c.DialogTimeoutSec < 1 {
		return fmt.Errorf("dialog-timeout must be at least 1 second, got %d", c.DialogTimeoutSec)
	}
	if c.CallbackTimeout < 1 {
		return fmt.Errorf("callback-timeout must be at least 1 second, got %d", c.CallbackTimeout)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate-limit-rps must not be negative, got %d", c.RateLimitRPS)
	}

	for _, gt := range []struct {
		name, val string
	}{
		{"gmlc-gt", c.GMLCAddress},
		{"hlr-gt", c.HLRAddress},
		{"msc-gt", c.MSCAddress},
	} {
		if gt.val == "" {
			return fmt.Errorf("%s must not be empty", gt.name)
		}
		for _, r := range gt.val {
			if r < '0' || r > '9' {
				return fmt.Errorf("%s must contain only digits, got %q", gt.name, gt.val)
			}
		}
	}
	for _, ssn := range []struct {
		name string
		val  int
	}{
		{"gmlc-ssn", c.GMLCSSN},
		{"hlr-ssn", c.HLRSSN},
		{"msc-ssn", c.MSCSSN},
	} {
		if ssn.val < 1 || ssn.val > 255 {
			return fmt.Errorf("%s must be between 1 and 255, got %d", ssn.name, ssn.val)
		}
	}

	// The admin API needs all three of secret, user and hash, or none.
	adminSet := 0
	for _, v := range []string{c.JWTSecret, c.AdminUser, c.AdminPasswordHash} {
		if v != "" {
			adminSet++
		}
	}
	if adminSet != 0 && adminSet != 3 {
		return fmt.Errorf("jwt-secret, admin-user and admin-password-hash must all be provided to enable the admin API")
	}
	if _, err := c.JWTSecretBytes(); err != nil {
		return err
	}

	return nil
}

// AdminEnabled reports whether the authenticated admin API is configured.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != "" && c.AdminUser != "" && c.AdminPasswordHash != ""
}

// TLSEnabled returns true if TLS certificates are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// JWTSecretBytes returns the decoded 32-byte admin token signing secret,
// or nil if the admin API is not configured.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DialogTimeout returns the MAP invoke timeout as a duration.
func (c *Config) DialogTimeout() time.Duration {
	return time.Duration(c.DialogTimeoutSec) * time.Second
}

// CallbackTimeoutDuration returns the callback delivery timeout as a duration.
func (c *Config) CallbackTimeoutDuration() time.Duration {
	return time.Duration(c.CallbackTimeout) * time.Second
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
