package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmehdipour/cablesync/internal/db"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (MySQL tables and ClickHouse history)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.PoolOptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer sqlDB.Close()

		mysqlSQL, err := readMigration("001_init.sql")
		if err != nil {
			return err
		}
		// DSN carries multiStatements=true
		if _, err := sqlDB.ExecContext(ctx, mysqlSQL); err != nil {
			return fmt.Errorf("exec mysql migration: %w", err)
		}
		logger.Log.Info("mysql migration applied")

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.PoolOptsFrom(cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer chDB.Close()

		chSQL, err := readMigration(filepath.Join("clickhouse", "001_history.sql"))
		if err != nil {
			return err
		}
		// clickhouse-go runs one statement per Exec
		for _, stmt := range splitStatements(chSQL) {
			if _, err := chDB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec clickhouse migration: %w", err)
			}
		}
		logger.Log.Info("clickhouse migration applied", zap.String("dir", migrationsDir))

		fmt.Println(">> Migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding migration files")
}

func readMigration(name string) (string, error) {
	p := filepath.Join(migrationsDir, name)
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read migration file %s: %w", p, err)
	}
	return string(b), nil
}

// splitStatements splits on ';' line endings and drops comment-only chunks.
func splitStatements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		var lines []string
		for _, l := range strings.Split(part, "\n") {
			if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, l)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.TrimSpace(strings.Join(lines, "\n")))
		}
	}
	return out
}
