package storage

import (
	"fmt"
	"net/url"
)

// DatabaseConfig describes a database connection for either backend.
type DatabaseConfig struct {
	Driver string `toml:"driver"` // "sqlite" (default) or "postgres"
	Path   string `toml:"path"`   // sqlite file path (":memory:" for tests)
	DSN    string `toml:"dsn"`    // full DSN; overrides the discrete fields

	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Name     string `toml:"name"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`

	MaxOpenConns        int `toml:"max_open_conns"`
	MaxIdleConns        int `toml:"max_idle_conns"`
	ConnMaxLifetimeSecs int `toml:"conn_max_lifetime_secs"`
}

// EffectiveDriver normalizes the configured driver name.
func (c *DatabaseConfig) EffectiveDriver() string {
	switch c.Driver {
	case "", "sqlite", "sqlite3", "modernc":
		return "sqlite"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return c.Driver
	}
}

// BuildDSN assembles a connection string from the discrete fields unless a
// full DSN was provided.
func (c *DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.EffectiveDriver() != "postgres" {
		return c.Path
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), host, port, c.Name, ssl)
}
