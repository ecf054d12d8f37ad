package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/restodash/backend/internal/domain/pnl"
	"github.com/restodash/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// errFindings marks a command that ran but found problems worth a non-zero exit.
var errFindings = errors.New("command reported findings")

type scopeFlags struct {
	location string
	year     int
	month    int
}

func (f *scopeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.location, "location", "", "Location ID")
	fs.IntVar(&f.year, "year", 0, "Year (YYYY)")
	fs.IntVar(&f.month, "month", 0, "Month (1-12)")
}

func (f *scopeFlags) scope() (pnl.Scope, error) {
	return pnl.NewScope(f.location, f.year, f.month)
}

func (f *scopeFlags) filter() pnl.ScopeFilter {
	return pnl.ScopeFilter{LocationID: f.location, Year: f.year, Month: f.month}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func summaryView(s *pnl.PeriodSummary, display bool) any {
	if display {
		return s.ForDisplay()
	}
	return s
}

func cmdAggregate(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	var sf scopeFlags
	sf.register(fs)
	dryRun := fs.Bool("dry-run", false, "Compute without storing the summary")
	display := fs.Bool("display", false, "Print costs as absolute values with margins")
	if err := fs.Parse(args); err != nil {
		return err
	}
	scope, err := sf.scope()
	if err != nil {
		return err
	}

	var summary *pnl.PeriodSummary
	if *dryRun {
		summary, err = a.service.ComputeScope(ctx, scope)
	} else {
		summary, err = a.service.RefreshScope(ctx, scope)
	}
	if err != nil {
		return err
	}
	return writeJSON(out, summaryView(summary, *display))
}

func cmdShow(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var sf scopeFlags
	sf.register(fs)
	display := fs.Bool("display", false, "Print costs as absolute values with margins")
	if err := fs.Parse(args); err != nil {
		return err
	}
	scope, err := sf.scope()
	if err != nil {
		return err
	}

	summary, err := a.service.GetSummary(ctx, scope)
	if err != nil {
		return err
	}
	return writeJSON(out, summaryView(summary, *display))
}

func cmdList(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	location := fs.String("location", "", "Location ID")
	year := fs.Int("year", 0, "Only this year (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	summaries, err := a.service.ListSummaries(ctx, *location, *year)
	if err != nil {
		return err
	}
	if summaries == nil {
		summaries = []*pnl.PeriodSummary{}
	}
	return writeJSON(out, summaries)
}

func cmdRefreshAll(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("refresh-all", flag.ContinueOnError)
	var sf scopeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.service.RefreshAll(ctx, sf.filter())
	if result != nil {
		if werr := writeJSON(out, result); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d scopes failed: %w", len(result.Failed), result.Total, errFindings)
	}
	return nil
}

func cmdReconcile(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	var sf scopeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	scope, err := sf.scope()
	if err != nil {
		return err
	}

	result, err := a.service.ReconcileScope(ctx, scope)
	if err != nil {
		return err
	}
	if err := writeJSON(out, result); err != nil {
		return err
	}
	if !result.InSync() || !result.Reconciliation.Balanced {
		return fmt.Errorf("%s is out of sync: %w", scope, errFindings)
	}
	return nil
}

// cmdImport loads a JSON array of line items into the ledger store.
func cmdImport(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "JSON file holding an array of line items")
	var sf scopeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	var only *pnl.Scope
	if sf != (scopeFlags{}) {
		scope, err := sf.scope()
		if err != nil {
			return err
		}
		only = &scope
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	items, err := decodeLineItems(f, only)
	if err != nil {
		return fmt.Errorf("%s: %w", *file, err)
	}
	if err := a.lineItems.SaveBatch(ctx, items); err != nil {
		return err
	}
	a.log.Info("Line items imported", zap.String("file", *file), zap.Int("count", len(items)))
	return writeJSON(out, map[string]int{"imported": len(items)})
}

// decodeLineItems reads a JSON array of line items. When only is set, every
// row must belong to that scope.
func decodeLineItems(r io.Reader, only *pnl.Scope) ([]pnl.LineItem, error) {
	var items []pnl.LineItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	for i, item := range items {
		scope := pnl.Scope{LocationID: item.LocationID, Year: item.Year, Month: item.Month}
		if err := scope.Validate(); err != nil {
			return nil, fmt.Errorf("line item %d: %w", i, err)
		}
		if item.Category == "" {
			return nil, fmt.Errorf("line item %d: category is empty", i)
		}
		if only != nil && !only.Contains(item) {
			return nil, fmt.Errorf("line item %d: %s is outside %s", i, scope, only)
		}
	}
	return items, nil
}

// cmdRun runs the job scheduler and the monthly trigger until a signal arrives.
func cmdRun(ctx context.Context, a *app, args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	sc := a.cfg.Scheduler
	if !sc.Enabled {
		return errors.New("scheduler is disabled (scheduler.enabled=false)")
	}

	schedule, err := scheduler.ParseMonthlySchedule(sc.MonthlySchedule)
	if err != nil {
		return err
	}
	loc, err := sc.Location()
	if err != nil {
		return err
	}

	jobs := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: sc.MaxConcurrentJobs,
		QueueSize:         sc.QueueSize,
		JobTimeout:        sc.JobTimeout,
		RetryAttempts:     sc.RetryAttempts,
		RetryDelay:        sc.RetryDelay,
	}, a.service, a.log)
	jobs.OnJobDone(func(job scheduler.Job) {
		a.log.Debug("Job done",
			zap.String("job_id", job.ID.String()),
			zap.String("scope", job.Scope.String()),
			zap.String("status", string(job.Status)),
		)
	})
	trigger := scheduler.NewMonthlyTrigger(scheduler.MonthlyTriggerConfig{
		Schedule:      schedule,
		CheckInterval: sc.CheckInterval,
		Location:      loc,
	}, jobs, a.service, a.log)

	if err := jobs.Start(ctx); err != nil {
		return err
	}
	if err := trigger.Start(ctx); err != nil {
		_ = jobs.Stop(context.Background())
		return err
	}
	a.log.Info("Scheduler running", zap.String("schedule", schedule.String()), zap.String("timezone", loc.String()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	a.log.Info("Shutting down scheduler...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(trigger.Stop(stopCtx), jobs.Stop(stopCtx))
}

const healthCheckTimeout = 5 * time.Second

func cmdHealth(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := make([]string, 0, len(a.checks))
	for name := range a.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := make(map[string]string, len(names))
	failed := 0
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := a.checks[name](checkCtx)
		cancel()
		if err != nil {
			report[name] = err.Error()
			failed++
			a.log.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		report[name] = "ok"
	}

	if err := writeJSON(out, report); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed: %w", failed, len(names), errFindings)
	}
	return nil
}
