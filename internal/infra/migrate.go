package infra

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	iofs "github.com/golang-migrate/migrate/v4/source/iofs"

	"pixshop/internal/infra/migrations"
)

// Migrate applies all pending SQL migrations bundled with the service.
func Migrate(databaseURL string, logger Logger) (err error) {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if err == nil && srcErr != nil {
			err = fmt.Errorf("close migration source: %w", srcErr)
		}
		if err == nil && dbErr != nil {
			err = fmt.Errorf("close migration database: %w", dbErr)
		}
	}()

	version, dirty, verr := migrator.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		logger.Info().Msg("no migrations applied yet")
	case verr != nil:
		logger.Warn().Err(verr).Msg("read migration version")
	default:
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("current migration state")
	}

	if dirty {
		logger.Warn().Uint("version", version).Msg("database is dirty, forcing version")
		if err := migrator.Force(int(version)); err != nil {
			return fmt.Errorf("force version %d: %w", version, err)
		}
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Msg("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info().Msg("migrations applied")
	return nil
}
