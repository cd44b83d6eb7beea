// Command migrator applies the schema in db/migrations to a Postgres database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/okian/checkin/pkg/logger"
)

const (
	directionUp      = "up"
	directionDown    = "down"
	directionVersion = "version"
)

var errUsage = errors.New("usage")

type options struct {
	dsn            string
	migrationsPath string
	direction      string
	steps          int
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("migrator", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.dsn, "dsn", os.Getenv("CHECKIN_POSTGRES_DSN"), "postgres connection string")
	fs.StringVar(&o.migrationsPath, "migrations-path", "db/migrations", "directory holding the migration files")
	fs.StringVar(&o.direction, "direction", directionUp, "up, down or version")
	fs.IntVar(&o.steps, "steps", 0, "number of migrations to apply or roll back; 0 means all")
	if err := fs.Parse(args); err != nil {
		return o, fmt.Errorf("%w: %w", errUsage, err)
	}

	if o.dsn == "" {
		return o, fmt.Errorf("%w: -dsn or CHECKIN_POSTGRES_DSN is required", errUsage)
	}
	if o.steps < 0 {
		return o, fmt.Errorf("%w: -steps must not be negative", errUsage)
	}
	switch o.direction {
	case directionUp, directionDown, directionVersion:
	default:
		return o, fmt.Errorf("%w: unknown direction %q", errUsage, o.direction)
	}
	return o, nil
}

func apply(m *migrate.Migrate, o options) error {
	var err error
	switch {
	case o.direction == directionUp && o.steps == 0:
		err = m.Up()
	case o.direction == directionUp:
		err = m.Steps(o.steps)
	case o.steps == 0:
		err = m.Down()
	default:
		err = m.Steps(-o.steps)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	log := logger.Get().Named("migrator")

	abs, err := filepath.Abs(o.migrationsPath)
	if err != nil {
		return fmt.Errorf("resolve migrations path: %w", err)
	}
	m, err := migrate.New("file://"+filepath.ToSlash(abs), o.dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Warn(ctx, "failed to close migrator", logger.Any("source_error", srcErr), logger.Any("db_error", dbErr))
		}
	}()

	if o.direction != directionVersion {
		if err := apply(m, o); err != nil {
			return fmt.Errorf("migrate %s: %w", o.direction, err)
		}
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info(ctx, "schema has no migrations applied", logger.String("direction", o.direction))
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		log.Info(ctx, "schema version",
			logger.String("direction", o.direction),
			logger.Int64("version", int64(version)),
			logger.Bool("dirty", dirty),
		)
	}
	return nil
}

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		logger.Get().Error(context.Background(), "migration failed", logger.Error(err))
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
