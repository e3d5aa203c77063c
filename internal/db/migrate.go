package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := ensureVectorExtension(ctx, p.gdb); err != nil {
		return err
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}
	return nil
}

// ensureVectorExtension installs pgvector on postgres. Other dialects store
// title vectors as their text literal and need nothing.
func ensureVectorExtension(ctx context.Context, gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("gorm db is nil")
	}
	if !isPostgresDialect(gdb) {
		return nil
	}

	if err := gdb.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		if !shouldFallbackToPgvector(err) {
			return fmt.Errorf("create vector extension: %w", err)
		}
		if execErr := gdb.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS pgvector").Error; execErr != nil {
			return fmt.Errorf("create pgvector extension: %w", execErr)
		}
	}
	return nil
}

func isPostgresDialect(gdb *gorm.DB) bool {
	if gdb == nil || gdb.Dialector == nil {
		return false
	}
	return strings.EqualFold(gdb.Dialector.Name(), "postgres")
}

func shouldFallbackToPgvector(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "58P01", "42704":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, `extension "vector"`) && strings.Contains(msg, "not") && strings.Contains(msg, "available")
}
