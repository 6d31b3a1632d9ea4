package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/danthegoodman1/parquetlayout/gologger"
	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v4/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

const tableName = "layout_migrations"

var (
	//go:embed *.sql
	migrations embed.FS

	source = migrate.EmbedFileSystemMigrationSource{FileSystem: migrations, Root: "."}

	ErrMigrationsNotRun = errors.New("not all migrations applied")

	logger = gologger.NewLogger()
)

func withDB(dsn string, fn func(db *sql.DB, ms migrate.MigrationSet) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("error in sql.Open: %w", err)
	}
	defer db.Close()
	return fn(db, migrate.MigrationSet{TableName: tableName})
}

// RunMigrations applies pending migrations and returns how many ran.
func RunMigrations(dsn string) (applied int, err error) {
	err = withDB(dsn, func(db *sql.DB, ms migrate.MigrationSet) error {
		applied, err = ms.Exec(db, "postgres", source, migrate.Up)
		if err != nil {
			return fmt.Errorf("error in migrate Exec: %w", err)
		}
		return nil
	})
	logger.Debug().Int("applied", applied).Msg("ran migrations")
	return applied, err
}

// CheckMigrations fails with ErrMigrationsNotRun when the catalog is behind
// the embedded migrations.
func CheckMigrations(dsn string) error {
	return withDB(dsn, func(db *sql.DB, ms migrate.MigrationSet) error {
		planned, _, err := ms.PlanMigration(db, "postgres", source, migrate.Up, 0)
		if err != nil {
			return fmt.Errorf("error in PlanMigration: %w", err)
		}
		if len(planned) == 0 {
			return nil
		}
		missing := make([]string, 0, len(planned))
		for _, mig := range planned {
			logger.Warn().Str("migrationID", mig.Id).Msg("missing migration")
			missing = append(missing, mig.Id)
		}
		return fmt.Errorf("missing %s (rerun with --migrate): %w", strings.Join(missing, ", "), ErrMigrationsNotRun)
	})
}

// Embedded lists the IDs of the embedded migrations in apply order.
func Embedded() ([]string, error) {
	migs, err := source.FindMigrations()
	if err != nil {
		return nil, fmt.Errorf("error in FindMigrations: %w", err)
	}
	ids := make([]string, 0, len(migs))
	for _, m := range migs {
		ids = append(ids, m.Id)
	}
	return ids, nil
}
