package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"erpgate/server/storage"
)

// Config is the server configuration, loaded from TOML with environment
// variable overrides.
type Config struct {
	Server      ServerConfig           `toml:"server"`
	Database    storage.DatabaseConfig `toml:"database"`
	Logging     LoggingConfig          `toml:"logging"`
	Tenancy     TenancyConfig          `toml:"tenancy"`
	Router      RouterConfig           `toml:"router"`
	Auth        AuthConfig             `toml:"auth"`
	Catalog     CatalogConfig          `toml:"catalog"`
	Entitlement EntitlementConfig      `toml:"entitlement"`
	Audit       AuditConfig            `toml:"audit"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	BindAddress string `toml:"bind_address"`
	HTTPPort    int    `toml:"http_port"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or console
}

// TenancyConfig tunes the tenant directory cache.
type TenancyConfig struct {
	DirectoryTTLSecs int `toml:"directory_ttl_secs"`
}

// RouterConfig tunes dedicated-store pooling and connect retries.
type RouterConfig struct {
	MaxLeasesPerTenant int `toml:"max_leases_per_tenant"`
	AcquireTimeoutMS   int `toml:"acquire_timeout_ms"`
	ConnectAttempts    int `toml:"connect_attempts"`
	ConnectBackoffMS   int `toml:"connect_backoff_ms"`
	MetadataTTLSecs    int `toml:"metadata_ttl_secs"`
	MaxOpenConns       int `toml:"max_open_conns"`
}

// AuthConfig holds token verification and the privileged-role threshold.
type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	PrivilegedLevel int    `toml:"privileged_level"`
	CredentialKey   string `toml:"credential_key"` // base64 key for dedicated-store credentials
}

// CatalogConfig bounds menu tree traversal.
type CatalogConfig struct {
	MaxMenuDepth int `toml:"max_menu_depth"`
}

// EntitlementConfig tunes the module activation cache.
type EntitlementConfig struct {
	CacheTTLSecs int `toml:"cache_ttl_secs"`
}

// AuditConfig selects the audit backend. Disabled means events are dropped.
type AuditConfig struct {
	Enabled       bool   `toml:"enabled"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Stream        string `toml:"stream"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress: "0.0.0.0",
			HTTPPort:    9080,
		},
		Database: storage.DatabaseConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tenancy: TenancyConfig{
			DirectoryTTLSecs: 60,
		},
		Router: RouterConfig{
			MaxLeasesPerTenant: 8,
			AcquireTimeoutMS:   2000,
			ConnectAttempts:    3,
			ConnectBackoffMS:   100,
			MetadataTTLSecs:    30,
			MaxOpenConns:       4,
		},
		Auth: AuthConfig{
			PrivilegedLevel: 90,
		},
		Catalog: CatalogConfig{
			MaxMenuDepth: 12,
		},
		Entitlement: EntitlementConfig{
			CacheTTLSecs: 30,
		},
		Audit: AuditConfig{
			Enabled: false,
			Stream:  "erpgate:audit",
		},
	}
}

// LoadConfig loads configuration from a TOML file if it exists, then applies
// environment variable overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SERVER_HTTP_PORT"); val != "" {
		var port int
		if _, err := fmt.Sscanf(val, "%d", &port); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("BIND_ADDRESS"); val != "" {
		cfg.Server.BindAddress = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = strings.ToLower(val)
	}
	if val := os.Getenv("DATABASE_DRIVER"); val != "" {
		cfg.Database.Driver = val
	}
	if val := os.Getenv("DATABASE_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := os.Getenv("DATABASE_DSN"); val != "" {
		cfg.Database.DSN = val
	}
	if val := os.Getenv("JWT_SECRET"); val != "" {
		cfg.Auth.JWTSecret = val
	}
	if val := os.Getenv("CREDENTIAL_KEY"); val != "" {
		cfg.Auth.CredentialKey = val
	}
	if val := os.Getenv("PRIVILEGED_LEVEL"); val != "" {
		var lvl int
		if _, err := fmt.Sscanf(val, "%d", &lvl); err == nil {
			cfg.Auth.PrivilegedLevel = lvl
		}
	}
	if val := os.Getenv("AUDIT_ENABLED"); val != "" {
		cfg.Audit.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("AUDIT_REDIS_ADDR"); val != "" {
		cfg.Audit.RedisAddr = val
	}
	if val := os.Getenv("AUDIT_REDIS_PASSWORD"); val != "" {
		cfg.Audit.RedisPassword = val
	}
}

// WriteDefaultConfig writes the default configuration to a TOML file. Fails
// if the file already exists.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	f, err := os.OpenFile(configPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config %s: %w", configPath, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(DefaultConfig())
}

// DirectoryTTL returns the tenant directory TTL as a duration.
func (c *Config) DirectoryTTL() time.Duration {
	return time.Duration(c.Tenancy.DirectoryTTLSecs) * time.Second
}

// EntitlementTTL returns the activation cache TTL as a duration.
func (c *Config) EntitlementTTL() time.Duration {
	return time.Duration(c.Entitlement.CacheTTLSecs) * time.Second
}
