package scenario

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/forgo/modelfactory/pkg/factory"
	"github.com/forgo/modelfactory/pkg/orm"
)

// Runner executes the seed section of a scenario through a Factory.
type Runner struct {
	factory *factory.Factory
	logger  *slog.Logger
	dryRun  bool
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithDryRun resolves attributes without persisting anything.
func WithDryRun(dryRun bool) RunnerOption {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithLogger sets the runner's logger; the default discards.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner building through f.
func NewRunner(f *factory.Factory, opts ...RunnerOption) *Runner {
	r := &Runner{
		factory: f,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of one seed entry
type Result struct {
	Index int
	Model string

	// Keys of the created models; empty on a dry run.
	Keys []any

	// Rows holds the resolved attributes of a dry run.
	Rows []orm.Attributes
}

// Count is the number of top-level models the seed produced
func (r Result) Count() int {
	if r.Rows != nil {
		return len(r.Rows)
	}
	return len(r.Keys)
}

// Summary collects the results of a run.
type Summary struct {
	DryRun   bool
	Results  []Result
	Duration time.Duration

	// Created counts every model persisted during the run, relations included.
	Created map[string]int
}

// Run executes every seed entry in order and stops at the first failure.
// The summary returned alongside an error covers the seeds that succeeded.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Summary, error) {
	start := time.Now()
	summary := &Summary{DryRun: r.dryRun, Created: make(map[string]int)}

	names := r.factory.DB().Schema().Names()
	before := r.createdCounts(names)
	defer func() {
		summary.Duration = time.Since(start)
		for name, n := range r.createdCounts(names) {
			if d := n - before[name]; d > 0 {
				summary.Created[name] = d
			}
		}
	}()

	for i, seed := range s.Seed {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := r.runSeed(ctx, i, seed)
		if err != nil {
			r.logger.Error("seed failed",
				slog.Int("seed", i),
				slog.String("model", seed.Model),
				slog.String("error", err.Error()))
			return summary, fmt.Errorf("seed[%d] %s: %w", i, seed.Model, err)
		}
		summary.Results = append(summary.Results, res)
		r.logger.Info("seed applied",
			slog.Int("seed", i),
			slog.String("model", seed.Model),
			slog.Int("count", res.Count()),
			slog.Bool("dry_run", r.dryRun))
	}
	return summary, nil
}

func (r *Runner) runSeed(ctx context.Context, i int, seed Seed) (Result, error) {
	st, err := compileRecipe(seed.Recipe)
	if err != nil {
		return Result{}, err
	}

	b := r.factory.Of(seed.Model)
	if seed.Connection != "" {
		b = b.Connection(seed.Connection)
	}
	b = st.apply(b)

	res := Result{Index: i, Model: seed.Model}
	if r.dryRun {
		rows, err := b.Raw(ctx)
		if err != nil {
			return Result{}, err
		}
		res.Rows = rows
		return res, nil
	}

	models, err := b.Create(ctx)
	if err != nil {
		return Result{}, err
	}
	res.Keys = models.Keys()
	return res, nil
}

func (r *Runner) createdCounts(names []string) map[string]int {
	counts := make(map[string]int, len(names))
	for _, name := range names {
		counts[name] = len(r.factory.History().All(name))
	}
	return counts
}

// Render writes the summary as tables: one row per seed entry, then, unless this
// was a dry run, the number of models created per type.
func (s *Summary) Render(w io.Writer) {
	seeds := table.NewWriter()
	seeds.SetOutputMirror(w)
	seeds.SetStyle(table.StyleLight)
	seeds.AppendHeader(table.Row{"#", "Model", "Count"})
	for _, res := range s.Results {
		seeds.AppendRow(table.Row{res.Index, res.Model, res.Count()})
	}
	seeds.Render()

	if s.DryRun {
		_, _ = fmt.Fprintf(w, "(dry run, %d seeds, nothing persisted)\n", len(s.Results))
		return
	}

	created := table.NewWriter()
	created.SetOutputMirror(w)
	created.SetStyle(table.StyleLight)
	created.AppendHeader(table.Row{"Model", "Created"})
	total := 0
	for _, name := range sortedKeys(s.Created) {
		created.AppendRow(table.Row{name, s.Created[name]})
		total += s.Created[name]
	}
	created.AppendFooter(table.Row{"Total", total})
	created.Render()
	_, _ = fmt.Fprintf(w, "(%d models in %s)\n", total, s.Duration.Round(time.Millisecond))
}
