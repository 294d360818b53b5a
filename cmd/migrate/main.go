package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	infraconfig "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/config"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/config"
)

// Exit codes for the migrate command.
const (
	exitSuccess = 0
	exitFailure = 1
)

const defaultMigrationsPath = "file://migrations"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: migrate <up|down|version>")
		return exitFailure
	}

	direction := os.Args[1]
	switch direction {
	case "up", "down", "version":
	default:
		fmt.Fprintf(os.Stderr, "Invalid command: %q (must be up, down or version)\n", direction)
		return exitFailure
	}

	cfg, err := config.Load(infraconfig.GetConfigPath("config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	source := defaultMigrationsPath
	if p := os.Getenv("MIGRATIONS_PATH"); p != "" {
		source = p
	}

	m, err := migrate.New(source, cfg.Database.MigrateURL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrate instance: %v\n", err)
		return exitFailure
	}
	defer func() { _, _ = m.Close() }()

	if direction == "version" {
		version, dirty, versionErr := m.Version()
		if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
			fmt.Fprintf(os.Stderr, "Failed to read version: %v\n", versionErr)
			return exitFailure
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return exitSuccess
	}

	if err := runMigration(m, direction); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", direction, err)
		return exitFailure
	}

	fmt.Printf("Migration %s completed successfully\n", direction)
	return exitSuccess
}

func runMigration(m *migrate.Migrate, direction string) error {
	var err error

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No migrations to apply")
		return nil
	}

	return err
}
