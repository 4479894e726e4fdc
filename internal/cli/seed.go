package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/forgo/modelfactory/internal/scenario"
	"github.com/forgo/modelfactory/pkg/factory"
)

func newSeedCommand(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed <scenario.yaml>",
		Short: "Create the records described by a scenario file",
		Long: `Create the records described by a scenario file.

Every seed entry is built through the scenario's model factories and persisted
together with its requested relations. With --dry-run the attributes of each
top-level record are resolved and counted but nothing is written.`,
		Example: `  # Seed the default connection
  modelfactory seed scenarios/blog.yaml

  # Reproducible data on a named connection
  modelfactory seed scenarios/blog.yaml --connection staging --seed 42

  # Check a scenario without writing
  modelfactory seed scenarios/blog.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			s, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			schema, err := s.Schema()
			if err != nil {
				return err
			}
			registry, err := s.Registry()
			if err != nil {
				return err
			}

			db, err := a.openDB(ctx, schema)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, db.Close()) }()

			opts := []factory.Option{factory.WithLogger(a.logger)}
			if a.cfg.Seed != 0 {
				opts = append(opts, factory.WithSeed(a.cfg.Seed))
			}
			f := factory.New(db, registry, opts...)

			a.logger.Info("seeding",
				slog.String("scenario", args[0]),
				slog.String("connection", a.cfg.DefaultConnection),
				slog.Int("seeds", len(s.Seed)),
				slog.Bool("dry_run", dryRun))

			summary, runErr := scenario.NewRunner(f,
				scenario.WithDryRun(dryRun),
				scenario.WithLogger(a.logger),
			).Run(ctx, s)
			summary.Render(cmd.OutOrStdout())
			if runErr != nil {
				return fmt.Errorf("seeding %s: %w", args[0], runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve attributes without writing anything")
	cmd.Flags().Int64("seed", 0, "Faker seed for reproducible data (0 picks a random seed)")
	return cmd
}
