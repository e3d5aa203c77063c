package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/newsdigest/internal/cli"
	"horse.fit/newsdigest/internal/pipeline"
	"horse.fit/newsdigest/internal/recommend"
)

func runRecommend(args []string) int {
	fs := flag.NewFlagSet("recommend", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	articleID := fs.Int64("article-id", 0, "Source article id")
	k := fs.Int("k", recommend.DefaultK, "Number of recommendations")
	window := fs.Int("window", pipeline.DefaultRecommendWindow, "Most recent feature rows to compare against")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *articleID <= 0 {
		fmt.Fprintln(os.Stderr, "--article-id must be > 0")
		return 2
	}
	if *window <= 0 {
		fmt.Fprintln(os.Stderr, "--window must be > 0")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	env, code := setup(ctx, "recommend", envLoader)
	if code != 0 {
		return code
	}
	defer env.Close()

	svc, err := newService(env, false, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recommend setup failed: %v\n", err)
		return 1
	}

	items, err := svc.Recommend(ctx, *articleID, *k, *window)
	if err != nil {
		env.logger.Error().Err(err).Int64("article_id", *articleID).Msg("recommend failed")
		fmt.Fprintf(os.Stderr, "Recommend failed: %v\n", err)
		return 1
	}

	fmt.Printf("recommend article_id=%d k=%d results=%d\n", *articleID, *k, len(items))
	for i, item := range items {
		fmt.Printf("%d\t%d\t%.4f\t%s\n", i+1, item.ArticleID, item.Score, item.Title)
	}
	return 0
}
