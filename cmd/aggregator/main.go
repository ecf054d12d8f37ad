package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/restodash/backend/internal/domain/shared"
	"github.com/restodash/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

type command func(ctx context.Context, a *app, args []string, out io.Writer) error

var commands = map[string]command{
	"aggregate":   cmdAggregate,
	"show":        cmdShow,
	"list":        cmdList,
	"refresh-all": cmdRefreshAll,
	"reconcile":   cmdReconcile,
	"import":      cmdImport,
	"run":         cmdRun,
	"health":      cmdHealth,
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to config file")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := newApp(ctx, configFile)
	if err != nil {
		// the configured logger may not exist yet
		boot, logErr := logger.NewForEnvironment(os.Getenv("RESTODASH_APP_ENV"))
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
			os.Exit(1)
		}
		boot.Error("Failed to start", zap.String("command", args[0]), zap.Error(err))
		_ = logger.Sync(boot)
		os.Exit(1)
	}

	err = cmd(ctx, a, args[1:], os.Stdout)
	code := 0
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errFindings):
		a.log.Warn("Command finished with findings", zap.String("command", args[0]), zap.Error(err))
		code = 2
	default:
		a.log.Error("Command failed",
			zap.String("command", args[0]),
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		code = 1
	}
	a.Close()
	os.Exit(code)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Restodash P&L Aggregator

Usage:
  aggregator [-config file] <command> [flags]

Commands:
  aggregate -location L -year Y -month M [-dry-run] [-display]
                        Recompute one location-month and store the summary
  show -location L -year Y -month M [-display]
                        Print the stored summary
  list -location L [-year Y]
                        Print the stored summaries of a location
  refresh-all [-location L] [-year Y] [-month M]
                        Recompute every matching scope in the ledger
  reconcile -location L -year Y -month M
                        Compare the stored summary with a fresh recompute
  import -file items.json [-location L -year Y -month M]
                        Load a JSON array of line items into the ledger store,
                        optionally requiring every row to belong to one scope
  run                   Run the scheduler and the monthly trigger until interrupted
  health                Ping the configured stores, cache and circuit breaker

Exit codes:
  0 success, 1 error, 2 failed scopes, reconciliation drift or failed health checks

Configuration is read from config.toml (., ./config, /app), .env and RESTODASH_* variables.`)
}
