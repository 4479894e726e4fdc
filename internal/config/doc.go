// Package config manages configuration for the modelfactory CLI.
//
// Configuration is layered with koanf. Later layers win:
//
//  1. Defaults (one in-memory connection named "default")
//  2. A YAML file: --config, or modelfactory.yaml / modelfactory.yml in the working directory
//  3. Environment variables prefixed MODELFACTORY_
//  4. Command-line flags that were explicitly set
//
// # Configuration File
//
//	default_connection: main
//	seed: 42
//	log_level: debug
//	migrations_dir: ./migrations
//	connections:
//	  main:
//	    driver: sqlite
//	    path: ./fixtures.db
//	  warehouse:
//	    driver: postgres
//	    host: localhost
//	    database: warehouse
//	    password: ${PGPASSWORD}
//
// # Environment Variables
//
// A double underscore separates nesting levels:
//
//	MODELFACTORY_LOG_LEVEL                 - debug, info, warn or error (default: info)
//	MODELFACTORY_SEED                      - faker seed, 0 for random (default: 0)
//	MODELFACTORY_DEFAULT_CONNECTION        - connection used unless a model names one
//	MODELFACTORY_CONNECTIONS__MAIN__DRIVER - memory, sqlite, postgres or surrealdb
//
// Host, user, password and dsn values may reference other variables as ${VAR}.
//
// Load validates the result and reports every problem at once:
//
//	cfg, file, err := config.Load(cfgFile, cmd.Flags())
package config
