package db

import (
	"errors"
	"fmt"
	"io"
)

// ErrUsage is returned when the migrate subcommand is misused.
var ErrUsage = errors.New("usage: overlay migrate <up|down|status>")

// RunMigrateCommand handles `overlay migrate <action>` against dbPath and
// writes a human-readable result to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) != 1 {
		PrintMigrateHelp(out)
		return ErrUsage
	}
	switch args[0] {
	case "help", "-h", "--help":
		PrintMigrateHelp(out)
		return nil
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		return printStatus(database, out)
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		return printStatus(database, out)
	case "status":
		return printStatus(database, out)
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q: %w", args[0], ErrUsage)
	}
}

func printStatus(database *DB, out io.Writer) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	latest, err := LatestMigration()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "database: %s\n", database.Path())
	fmt.Fprintf(out, "version:  %d (latest %d)\n", version, latest)
	if dirty {
		fmt.Fprintln(out, "state:    DIRTY, a migration failed part way")
	} else if version < latest {
		fmt.Fprintf(out, "state:    %d pending\n", latest-version)
	} else {
		fmt.Fprintln(out, "state:    up to date")
	}
	return nil
}

// PrintMigrateHelp writes the subcommand usage to out.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: overlay migrate <action>

Actions:
  up      apply all pending migrations
  down    roll back the most recent migration
  status  show the applied and latest versions
`)
}
