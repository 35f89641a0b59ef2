package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the service owns or reads, in dependency order.
func Models() []any {
	return []any{
		&submissiondomain.FormField{},
		&submissiondomain.Submission{},
		&submissiondomain.Answer{},
		&taxonomydomain.Unit{},
		&taxonomydomain.Category{},
		&taxonomydomain.SubCategory{},
		&taxonomydomain.MetricDefinition{},
		&mappingdomain.Mapping{},
		&populationdomain.MetricValue{},
		&populationdomain.PopulationRun{},
		&populationdomain.PopulationLog{},
	}
}

// Apply brings the schema up to date. Postgres uses the embedded SQL
// migrations; other dialects fall back to gorm's AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
