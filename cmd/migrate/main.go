package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"

	"peersync/internal/history"
	"peersync/internal/lib/logger"
	"peersync/internal/lib/logger/sl"
	"peersync/pkg/migrator"
)

func main() {
	migrationDir := flag.String("path", "", "Path to a migrations directory (default: migrations built into the binary)")
	dbPath := flag.String("db", "history.sqlite", "Path to the SQLite database file")
	direction := flag.String("direction", "up", "Migration direction: up, down, version, rollback or to")
	version := flag.Int("version", 0, "Target version for migration")
	steps := flag.Int("steps", 1, "Number of steps to roll back")
	env := flag.String("env", logger.EnvLocal, "Logging environment: local, dev or prod")

	flag.Parse()

	log := logger.Setup(*env, os.Stdout)

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Error("Failed to open database", sl.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Error("Failed to connect to database", sl.Err(err))
		os.Exit(1)
	}

	cfg := migrator.Config{MigrationsPath: *migrationDir}
	if *migrationDir == "" {
		cfg = migrator.Config{MigrationsPath: history.MigrationsDir, FS: history.Migrations}
	}

	m := migrator.NewMigrator(db, cfg, log)

	switch *direction {
	case "up":
		err = m.MigrateUp()
	case "down":
		err = m.MigrateDown()
	case "rollback":
		err = m.MigrateDownN(*steps)
	case "to":
		if *version <= 0 {
			log.Error("Please specify a target version with -version flag")
			os.Exit(1)
		}
		err = m.MigrateTo(uint(*version))
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil {
			log.Error("Failed to get migration version", sl.Err(verr))
			os.Exit(1)
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", v, dirty)
		return
	default:
		log.Error("Unknown migration direction", slog.String("direction", *direction))
		os.Exit(1)
	}

	if err != nil {
		log.Error("Migration failed", slog.String("direction", *direction), sl.Err(err))
		os.Exit(1)
	}
	log.Info("Migration completed successfully")
}
