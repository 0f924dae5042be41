package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaSui01/experimentkit/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles `migrate <action> [args] [options]`
func runMigrate(args []string) error {
	if len(args) < 1 {
		printMigrateUsage(os.Stderr)
		return fmt.Errorf("missing migrate subcommand")
	}
	action := args[0]
	if action == "help" || action == "-h" || action == "--help" {
		printMigrateUsage(os.Stdout)
		return nil
	}
	fs, g := newFlagSet("migrate " + action)
	dbType := fs.String("db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	all := fs.Bool("all", false, "With down: rollback all migrations")
	positional, err := parseInterspersed(fs, args[1:])
	if err != nil {
		return err
	}
	if action == "down" && *all {
		action = "down-all"
	}

	m, err := createMigrator(g, *dbType, *dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return migration.NewCLI(m).Run(ctx, action, positional)
}

// createMigrator 优先使用 --db-type/--db-url，否则读取配置中的数据库设置
func createMigrator(g *globalFlags, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, nil)
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}

	logger := initLogger(cfg.Log)
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(out io.Writer) {
	fmt.Fprintln(out, `Database Migration Commands

Usage:
  experimentkit migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all to rollback everything)
  down-all    Rollback all migrations
  steps <n>   Apply n migrations; rollback with a negative n (steps -- -2)
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  info        Show migration summary
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  experimentkit migrate up
  experimentkit migrate up --config /etc/experimentkit/config.yaml
  experimentkit migrate down
  experimentkit migrate status
  experimentkit migrate goto 1
  experimentkit migrate force 0`)
}
