package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/Rrens/chat-gateway/internal/config"
	"github.com/Rrens/chat-gateway/internal/repository"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
)

const usage = `usage: migrate [flags] <up|down|status>

  up      apply all pending migrations
  down    roll back the last migration
  status  print the applied version`

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load config: %v", err)
	}

	target := cfg.Database.Path
	if cfg.Database.Driver == "postgres" {
		target = fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}
	fmt.Printf("Using %s database at %s\n", driverName(cfg.Database.Driver), target)

	switch flag.Arg(0) {
	case "up":
		if err := repository.RunMigrations(cfg.Database); err != nil {
			fail("Failed to apply migrations: %v", err)
		}
		printStatus(cfg.Database)
	case "down":
		m, err := repository.NewMigrator(cfg.Database)
		if err != nil {
			fail("Failed to open migrator: %v", err)
		}
		defer m.Close()
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fail("Failed to roll back: %v", err)
		}
		printStatus(cfg.Database)
	case "status":
		printStatus(cfg.Database)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printStatus(cfg config.DatabaseConfig) {
	version, dirty, err := repository.MigrationStatus(cfg)
	if err != nil {
		fail("Failed to read status: %v", err)
	}
	if version == 0 {
		fmt.Println("No migrations applied")
		return
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Printf("Schema version %d (%s)\n", version, state)
}

func driverName(driver string) string {
	if driver == "" {
		return "sqlite"
	}
	return driver
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
