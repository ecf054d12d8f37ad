package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/restodash/backend/internal/infrastructure/config"
	"github.com/restodash/backend/internal/infrastructure/logger"
	"github.com/restodash/backend/internal/infrastructure/migration"
	"github.com/restodash/backend/migrations"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "migrations"

// options are the global flags shared by every command.
type options struct {
	path   string
	config string
	out    io.Writer
	log    *zap.Logger
}

// source returns the migrations named by -path, or the embedded schema.
func (o options) source() fs.FS {
	if o.path == "" {
		return migrations.FS
	}
	return os.DirFS(o.path)
}

// fileCommands only touch migration files.
var fileCommands = map[string]func(o options, args []string) error{
	"create": cmdCreate,
	"list":   cmdList,
}

// dbCommands run against the configured postgres schema.
var dbCommands = map[string]func(o options, m *migration.Migrator, args []string) error{
	"up":      func(_ options, m *migration.Migrator, _ []string) error { return m.Up() },
	"down":    func(_ options, m *migration.Migrator, _ []string) error { return m.Down() },
	"step":    cmdStep,
	"goto":    cmdGoto,
	"version": cmdVersion,
	"status":  cmdStatus,
	"force":   cmdForce,
}

func main() {
	var (
		o        options
		logLevel string
	)
	flag.StringVar(&o.path, "path", "", "Path to migrations directory (default: migrations embedded in the binary)")
	flag.StringVar(&o.config, "config", "", "Path to config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
		Service:    "restodash-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	o.log = log
	o.out = os.Stdout

	if o.path != "" {
		if o.path, err = filepath.Abs(o.path); err != nil {
			log.Fatal("Invalid migrations path", zap.Error(err))
		}
	}

	if err := run(o, args[0], args[1:]); err != nil {
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
	_ = logger.Sync(log)
}

func run(o options, name string, args []string) error {
	if cmd, ok := fileCommands[name]; ok {
		return cmd(o, args)
	}
	cmd, ok := dbCommands[name]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigFile: o.config, EnvFile: ".env"})
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("sql migrations apply to postgres only, database.driver is %q", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, o.path, o.log)
	if err != nil {
		return err
	}
	defer m.Close()

	o.log.Info("Running migration command",
		zap.String("command", name),
		zap.String("database", cfg.Database.DBName),
		zap.String("migrations", displayPath(o.path)),
	)
	return cmd(o, m, args)
}

func cmdCreate(o options, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: migrate create <name> [description]")
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	dir := o.path
	if dir == "" {
		dir = defaultMigrationsDir
	}

	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		return err
	}
	o.log.Info("Migration created",
		zap.Int("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func cmdList(o options, _ []string) error {
	names, err := migration.ListMigrations(o.source())
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(o.out, name)
	}
	o.log.Debug("Listed migrations", zap.Int("count", len(names)), zap.String("source", displayPath(o.path)))
	return nil
}

func cmdStep(_ options, m *migration.Migrator, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: migrate step <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid step count %q", args[0])
	}
	return m.Steps(n)
}

func cmdGoto(_ options, m *migration.Migrator, args []string) error {
	version, err := versionArg(args, "goto")
	if err != nil {
		return err
	}
	return m.GoTo(uint(version))
}

func cmdForce(_ options, m *migration.Migrator, args []string) error {
	version, err := versionArg(args, "force")
	if err != nil {
		return err
	}
	return m.Force(version)
}

func versionArg(args []string, cmd string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: migrate %s <version>", cmd)
	}
	v, err := strconv.Atoi(args[0])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return v, nil
}

func cmdVersion(o options, m *migration.Migrator, _ []string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(o.out, "%d%s\n", version, dirtyMark(dirty))
	return nil
}

// cmdStatus compares the applied schema version with the newest migration
// shipped in the source.
func cmdStatus(o options, m *migration.Migrator, _ []string) error {
	applied, dirty, err := m.Version()
	if err != nil {
		return err
	}
	latest, err := migration.LatestVersion(o.source())
	if err != nil {
		return err
	}

	state := "up to date"
	switch {
	case dirty:
		state = "dirty, run force after fixing the failed migration"
	case applied < latest:
		state = fmt.Sprintf("%d pending", latest-applied)
	case applied > latest:
		state = "ahead of the available migrations"
	}
	fmt.Fprintf(o.out, "applied: %d%s\nlatest:  %d\nstate:   %s\n", applied, dirtyMark(dirty), latest, state)
	return nil
}

func dirtyMark(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}

func displayPath(path string) string {
	if path == "" {
		return "(embedded)"
	}
	return path
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Restodash schema migrations

Usage:
  migrate [-path dir] [-config file] [-log-level level] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations, negative n rolls back
  goto <version>        Migrate up or down to version
  version               Print the applied version
  status                Compare the applied version with the newest migration
  force <version>       Set the version without migrating, clears a dirty state
  create <name> [desc]  Write a new up/down pair (default dir ./migrations)
  list                  Print the available migrations

Connection settings come from config.toml, .env and RESTODASH_DATABASE_HOST,
RESTODASH_DATABASE_PORT, RESTODASH_DATABASE_USER, RESTODASH_DATABASE_PASSWORD,
RESTODASH_DATABASE_DBNAME, RESTODASH_DATABASE_SSLMODE.`)
}
