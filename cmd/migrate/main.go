package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appmigrations "github.com/wolfman30/cashoffer-funnel/migrations"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

const usage = "usage: migrate [up | down | force <version> | version]"

type command struct {
	name    string
	version int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: "up"}, nil
	}
	switch args[0] {
	case "up", "down", "version":
		return command{name: args[0]}, nil
	case "force":
		if len(args) < 2 {
			return command{}, errors.New(usage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return command{name: "force", version: v}, nil
	}
	return command{}, fmt.Errorf("unknown command %q; %s", args[0], usage)
}

func ledgerSource() (source.Driver, error) {
	return iofs.New(appmigrations.FS, ".")
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		logger.Error("bad arguments", "error", err)
		os.Exit(2)
	}
	if err := run(cmd, strings.TrimSpace(os.Getenv("DATABASE_URL")), logger); err != nil {
		logger.Error("migration failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
}

func run(cmd command, databaseURL string, logger *logging.Logger) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if table := strings.TrimSpace(os.Getenv("LEDGER_TABLE")); table != "" && table != "lead_ledger" {
		logger.Warn("migrations create lead_ledger; LEDGER_TABLE points elsewhere", "ledger_table", table)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	src, err := ledgerSource()
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch cmd.name {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "force":
		err = m.Force(cmd.version)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			return fmt.Errorf("read version: %w", verr)
		}
		logger.Info("ledger schema version", "version", version, "dirty", dirty)
		return nil
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	logger.Info("migration complete", "command", cmd.name)
	return nil
}
