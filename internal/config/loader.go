package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/forgo/modelfactory/pkg/database"
	"github.com/forgo/modelfactory/pkg/orm"
)

// EnvPrefix is the prefix of environment variables read by Load.
// A double underscore separates nesting levels:
//
//	MODELFACTORY_LOG_LEVEL=debug
//	MODELFACTORY_CONNECTIONS__DEFAULT__DRIVER=sqlite
const EnvPrefix = "MODELFACTORY_"

// flagKeys maps flag names to config keys where the two differ
var flagKeys = map[string]string{
	"connection": "default_connection",
	"dir":        "migrations_dir",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > modelfactory.yaml > modelfactory.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"modelfactory.yaml", "modelfactory.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads configuration from defaults, a YAML file, environment variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// The result is validated before it is returned.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"default_connection":         orm.DefaultConnection,
		"log_level":                  DefaultLogLevel,
		"log_format":                 DefaultLogFormat,
		"migrations_dir":             DefaultMigrationsDir,
		"seed":                       0,
		"connections.default.driver": database.DriverMemory,
	}, "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: MODELFACTORY_CONNECTIONS__MAIN__HOST -> connections.main.host
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, used, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, used, nil
}
