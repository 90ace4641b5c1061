package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/wyxpro/CubeAI-FlowDecompose/config"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/migration"
)

// =============================================================================
// 🗃️ migrate 命令
// =============================================================================

// runMigrate 解析公共参数后把子命令交给 migration.CLI
func runMigrate(args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "help", "-h", "--help":
			printMigrateUsage()
			return
		}
	}

	sub, rest := splitSubcommand(args)

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	fs.Parse(rest)

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	migrator, err := createMigrator(*configPath, *dbType, *dbURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := migration.NewCLI(migrator)
	if err := cli.Run(ctx, slices.Concat(sub, fs.Args())); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// splitSubcommand 把 "goto 3 --config x.yaml" 拆成子命令部分与 flag 部分。
// "steps -1" 中的负数不视为 flag
func splitSubcommand(args []string) (sub, rest []string) {
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			continue
		}
		if _, err := strconv.Atoi(a); err == nil {
			continue
		}
		return args[:i], args[i:]
	}
	return args, nil
}

// createMigrator 优先使用 --db-type/--db-url，否则从配置文件读取数据库配置
func createMigrator(configPath, dbType, dbURL string, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  flowdecompose migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  status      Show migration status (default)
  version     Show current migration version
  info        Show database and migration details
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  flowdecompose migrate up --config /etc/flowdecompose/config.yaml
  flowdecompose migrate status
  flowdecompose migrate goto 1
  flowdecompose migrate up --db-type sqlite --db-url "file:flowdecompose.db?_pragma=foreign_keys(1)"`)
}
