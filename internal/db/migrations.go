package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	UpDownSeparator     = "-- +migrate Up"
	downMarker          = "-- +migrate Down"
	dbPrefixReplacer    = "/*dbprefix*/"
	NoLimitMigrations   = 0 // indicate that there is no limit on the number of migrations to run
	migrationDirections = 2
)

// Migration is an embedded SQL migration. Every occurrence of /*dbprefix*/ in SQL
// is replaced by Prefix, which lets one migration create per-network tables.
type Migration struct {
	ID     string
	SQL    string
	Prefix string
}

// RunMigrationsDB applies all pending up migrations.
func RunMigrationsDB(logger *logger.Logger, db *sql.DB, migrationsParam []Migration) error {
	return RunMigrationsDBExtended(logger, db, migrationsParam, migrate.Up, NoLimitMigrations)
}

// RunMigrationsDBExtended is an extended version of RunMigrationsDB that allows
// dir: can be migrate.Up or migrate.Down
// maxMigrations: Will apply at most `max` migrations. Pass 0 for no limit (or use Exec)
func RunMigrationsDBExtended(logger *logger.Logger,
	db *sql.DB,
	migrationsParam []Migration,
	dir migrate.MigrationDirection,
	maxMigrations int) error {
	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	for _, m := range migrationsParam {
		mig, err := parseMigration(m)
		if err != nil {
			return err
		}
		migs.Migrations = append(migs.Migrations, mig)
	}

	ids := make([]string, 0, len(migs.Migrations))
	for _, m := range migs.Migrations {
		ids = append(ids, m.Id)
	}
	listMigrations := strings.Join(ids, ", ")

	logger.Debugf("running migrations: (max %d/%d) migrations: %s", maxMigrations,
		len(migs.Migrations),
		listMigrations)

	// Tables of other networks may share the database, so unknown applied ids are expected.
	ms := migrate.MigrationSet{IgnoreUnknown: true}
	nMigrations, err := ms.ExecMax(db, driverName, migs, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("error executing migration (max %d/%d) migrations: %s . Err: %w",
			maxMigrations, len(migs.Migrations), listMigrations, err)
	}

	if nMigrations > 0 {
		logger.Infof("successfully ran %d migrations from migrations: %s", nMigrations, listMigrations)
	}
	return nil
}

// parseMigration splits a migration file into its down and up sections.
func parseMigration(m Migration) (*migrate.Migration, error) {
	prefixed := strings.ReplaceAll(m.SQL, dbPrefixReplacer, m.Prefix)
	splitted := strings.Split(prefixed, UpDownSeparator)

	if len(splitted) < migrationDirections {
		return nil, fmt.Errorf("migration %s missing '%s' separator", m.ID, UpDownSeparator)
	}

	downSQL := splitted[0]
	if idx := strings.Index(downSQL, downMarker); idx != -1 {
		downSQL = downSQL[idx+len(downMarker):]
	}

	return &migrate.Migration{
		Id:   m.Prefix + "_" + m.ID,
		Up:   []string{strings.TrimSpace(splitted[1])},
		Down: []string{strings.TrimSpace(downSQL)},
	}, nil
}
