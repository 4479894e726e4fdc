package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/forgo/modelfactory/pkg/database"
)

func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply goose migrations to a SQL connection",
		Long: `Apply every pending goose migration in the migrations directory to the
default connection, or the one named with --connection. Only sqlite and
postgres connections can be migrated.`,
		Example: `  modelfactory migrate --dir ./migrations
  modelfactory migrate --connection warehouse`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			name := a.cfg.DefaultConnection
			conn := a.cfg.Connections[name]

			store, err := database.Open(ctx, conn.StoreConfig(), a.logger.With(slog.String("connection", name)))
			if err != nil {
				return fmt.Errorf("failed to open connection %s: %w", name, err)
			}
			defer func() { _ = store.Close() }()

			sqlStore, ok := store.(*database.SQLStore)
			if !ok {
				return fmt.Errorf("connection %s uses driver %s, which has no migrations", name, conn.Driver)
			}

			dir := a.cfg.MigrationsDir
			if err := database.Migrate(sqlStore.DB(), sqlStore.Dialect(), nil, dir); err != nil {
				return err
			}
			version, err := database.MigrationVersion(sqlStore.DB(), sqlStore.Dialect())
			if err != nil {
				return err
			}

			a.logger.Info("migrations applied",
				slog.String("connection", name),
				slog.String("dir", dir),
				slog.Int64("version", version))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: migrated to version %d\n", name, version)
			return nil
		},
	}

	cmd.Flags().String("dir", "", "Migrations directory (default: migrations_dir from config)")
	return cmd
}
