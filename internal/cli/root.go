// Package cli provides the modelfactory command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/forgo/modelfactory/internal/config"
	"github.com/forgo/modelfactory/pkg/database"
	"github.com/forgo/modelfactory/pkg/orm"
)

// Version is set at build time.
var Version = "0.1.0"

// app is the state shared by every command of one root
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	a := &app{logger: slog.New(slog.DiscardHandler)}

	rootCmd := &cobra.Command{
		Use:   "modelfactory",
		Short: "Seed databases from declarative model factories",
		Long: `modelfactory builds related test and development data through model factories.

A scenario file declares model types, their relations and attribute definitions,
and the records to create. Records and every requested relation are persisted
through the configured connections.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, used, err := config.Load(a.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(cmd.ErrOrStderr(), cfg)
			if used != "" {
				a.logger.Debug("using config file", slog.String("path", used))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./modelfactory.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json|text)")
	rootCmd.PersistentFlags().StringP("connection", "c", "", "Default connection name")

	rootCmd.AddCommand(newSeedCommand(a))
	rootCmd.AddCommand(newMigrateCommand(a))
	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openStores connects every configured connection. On failure the stores already
// opened are closed again.
func (a *app) openStores(ctx context.Context) (map[string]database.Store, error) {
	stores := make(map[string]database.Store, len(a.cfg.Connections))
	for _, name := range a.cfg.ConnectionNames() {
		conn := a.cfg.Connections[name]
		store, err := database.Open(ctx, conn.StoreConfig(), a.logger.With(slog.String("connection", name)))
		if err != nil {
			closeErr := closeStores(stores)
			return nil, multierr.Append(fmt.Errorf("failed to open connection %s: %w", name, err), closeErr)
		}
		a.logger.Debug("connection opened",
			slog.String("connection", name),
			slog.String("driver", conn.Driver))
		stores[name] = store
	}
	return stores, nil
}

// openDB wraps every configured store in an orm.DB over schema.
func (a *app) openDB(ctx context.Context, schema *orm.Schema) (*orm.DB, error) {
	stores, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	opts := []orm.Option{
		orm.WithDefaultConnection(a.cfg.DefaultConnection),
		orm.WithLogger(a.logger),
	}
	for name, store := range stores {
		opts = append(opts, orm.WithStore(name, store))
	}
	return orm.New(schema, opts...), nil
}

func closeStores(stores map[string]database.Store) error {
	var err error
	for name, store := range stores {
		if cerr := store.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", name, cerr))
		}
	}
	return err
}
