package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/forgo/modelfactory/pkg/database"
	"github.com/forgo/modelfactory/pkg/orm"
)

// Defaults
const (
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultMigrationsDir = "migrations"
)

// Config holds all CLI configuration
type Config struct {
	Connections       map[string]ConnectionConfig `koanf:"connections"`
	DefaultConnection string                      `koanf:"default_connection"`
	Seed              int64                       `koanf:"seed"`
	LogLevel          string                      `koanf:"log_level"`
	LogFormat         string                      `koanf:"log_format"`
	MigrationsDir     string                      `koanf:"migrations_dir"`
}

// ConnectionConfig holds one named store connection
type ConnectionConfig struct {
	Driver    string `koanf:"driver"`
	Host      string `koanf:"host"`
	Port      string `koanf:"port"`
	User      string `koanf:"user"`
	Password  string `koanf:"password"`
	Namespace string `koanf:"namespace"`
	Database  string `koanf:"database"`
	Path      string `koanf:"path"`
	DSN       string `koanf:"dsn"`
	SSLMode   string `koanf:"sslmode"`
}

// Default returns the configuration used when nothing else is set: a single
// in-memory connection named after orm.DefaultConnection.
func Default() *Config {
	return &Config{
		Connections: map[string]ConnectionConfig{
			orm.DefaultConnection: {Driver: database.DriverMemory},
		},
		DefaultConnection: orm.DefaultConnection,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		MigrationsDir:     DefaultMigrationsDir,
	}
}

// StoreConfig converts the connection to the database package's config, expanding
// ${VAR} references in credentials and host.
func (c ConnectionConfig) StoreConfig() database.Config {
	return database.Config{
		Driver:    c.Driver,
		Host:      expandEnvVars(c.Host),
		Port:      c.Port,
		User:      expandEnvVars(c.User),
		Password:  expandEnvVars(c.Password),
		Namespace: c.Namespace,
		Database:  c.Database,
		Path:      c.Path,
		DSN:       expandEnvVars(c.DSN),
		SSLMode:   c.SSLMode,
	}
}

// ConnectionNames returns every configured connection name, sorted
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SlogLevel returns the configured log level, info when unrecognised
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Connections) == 0 {
		errs = append(errs, errors.New("connections must have at least one entry"))
	}
	if c.DefaultConnection == "" {
		errs = append(errs, errors.New("default_connection is required"))
	} else if _, ok := c.Connections[c.DefaultConnection]; !ok && len(c.Connections) > 0 {
		errs = append(errs, fmt.Errorf("default_connection %q is not a configured connection", c.DefaultConnection))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got '%s'", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log_format must be 'json' or 'text', got '%s'", c.LogFormat))
	}

	for _, name := range c.ConnectionNames() {
		if err := c.Connections[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("connections.%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks that the fields the driver needs are present
func (c ConnectionConfig) Validate() error {
	var missing []string
	switch c.Driver {
	case database.DriverMemory:
		return nil
	case database.DriverSQLite:
		return nil
	case database.DriverPostgres:
		if c.DSN == "" && c.Database == "" {
			missing = append(missing, "database")
		}
	case database.DriverSurrealDB:
		if c.Host == "" {
			missing = append(missing, "host")
		}
		if c.Namespace == "" {
			missing = append(missing, "namespace")
		}
		if c.Database == "" {
			missing = append(missing, "database")
		}
	case "":
		return errors.New("driver is required")
	default:
		return fmt.Errorf("driver must be one of %s, %s, %s, %s, got '%s'",
			database.DriverMemory, database.DriverSQLite, database.DriverPostgres, database.DriverSurrealDB, c.Driver)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields for %s: %s", c.Driver, strings.Join(missing, ", "))
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unknown variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}
