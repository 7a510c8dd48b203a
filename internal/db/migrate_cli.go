package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// RunMigrateCommand handles the 'migrate' subcommand: up, down, status,
// force <version>, or help. Output goes to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		return err
	}

	// Migrations manage the schema, so open without migrating.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ All migrations applied successfully")
		return printStatus(database, migrations, out)

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "✓ Migration rolled back successfully")
		return printStatus(database, migrations, out)

	case "status":
		return printStatus(database, migrations, out)

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate force <version_number>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(migrations, v); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Migration version forced to %d\n", v)
		return nil

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printStatus(database *DB, migrations fs.FS, out io.Writer) error {
	st, err := database.GetMigrationStatus(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "=== Migration Status ===")
	fmt.Fprintf(out, "Current version: %d\n", st.CurrentVersion)
	fmt.Fprintf(out, "Latest available: %d\n", st.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", st.Dirty)
	switch {
	case st.Dirty:
		fmt.Fprintln(out, "\n⚠️  Database is in a dirty state. Inspect it, then run: migrate force <version>")
	case st.CurrentVersion < st.LatestVersion:
		fmt.Fprintf(out, "\n⚠️  Database is %d version(s) behind. Run: migrate up\n", st.LatestVersion-st.CurrentVersion)
	}
	return nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: segmentation-node [-db path] migrate <action>

Actions:
  up                Apply all pending migrations
  down              Roll back the most recent migration
  status            Show current and latest schema versions
  force <version>   Set the recorded version without migrating (recovery only)
  help              Show this help
`)
}
