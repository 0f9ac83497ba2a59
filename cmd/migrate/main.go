// Command migrate applies the clickcounter PostgreSQL schema migrations.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	infraconfig "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/config"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/config"
)

// Exit codes for the migrate command.
const (
	exitSuccess = 0
	exitFailure = 1
)

// defaultMigrationsPath is used unless MIGRATIONS_PATH is set.
const defaultMigrationsPath = "file://migrations"

const usage = "Usage: migrate <up|down|version>"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		return exitFailure
	}

	command := args[0]
	switch command {
	case "up", "down", "version":
	default:
		fmt.Fprintf(os.Stderr, "Invalid command: %q\n%s\n", command, usage)
		return exitFailure
	}

	cfg, err := config.Load(infraconfig.GetConfigPath(infraconfig.DefaultConfigPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	source := defaultMigrationsPath
	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		source = path
	}

	m, err := migrate.New(source, cfg.Database.URL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrate instance: %v\n", err)
		return exitFailure
	}
	defer func() { _, _ = m.Close() }()

	if command == "version" {
		return printVersion(m)
	}

	if err = runMigration(m, command); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", command, err)
		return exitFailure
	}

	fmt.Printf("Migration %s completed successfully\n", command)
	return exitSuccess
}

func printVersion(m *migrate.Migrate) int {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("No migrations applied")
		return exitSuccess
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read version: %v\n", err)
		return exitFailure
	}
	fmt.Printf("Version %d (dirty: %t)\n", version, dirty)
	return exitSuccess
}

// runMigration executes the migration in the specified direction.
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
