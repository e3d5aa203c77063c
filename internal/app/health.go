package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/newsdigest/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Database ping timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	env, code := setup(ctx, "health", envLoader)
	if code != 0 {
		return code
	}
	defer env.Close()

	stats, err := env.pool.CorpusStats(ctx)
	if err != nil {
		env.logger.Error().Err(err).Msg("health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}

	env.logger.Info().
		Dur("timeout", *timeout).
		Str("dialect", env.pool.Dialect()).
		Msg("database health check passed")
	fmt.Printf("ok: database=%s articles=%d features=%d topics=%d\n", env.pool.Dialect(), stats.Articles, stats.Features, stats.Topics)
	return 0
}
