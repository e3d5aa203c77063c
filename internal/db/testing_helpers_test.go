package db

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"horse.fit/newsdigest/internal/config"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := &config.Config{
		Environment: "test",
		LogLevel:    "silent",
		DatabaseURL: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		DBMinConns:  1,
		DBMaxConns:  1,
	}

	pool, err := NewPool(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
	})
	return pool
}
