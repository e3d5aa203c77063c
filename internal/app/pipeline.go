package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/newsdigest/internal/cli"
	"horse.fit/newsdigest/internal/pipeline"
	"horse.fit/newsdigest/internal/source"
)

type pullFlags struct {
	topics     *string
	topicsFile *string
	from       *string
	to         *string
}

func addPullFlags(fs *flag.FlagSet) pullFlags {
	return pullFlags{
		topics:     fs.String("topics", "", "Comma separated topics; overrides --topics-file"),
		topicsFile: fs.String("topics-file", "", "Topics file (defaults to TOPICS_FILE)"),
		from:       fs.String("from", "", "First search day YYYY-MM-DD (default today UTC)"),
		to:         fs.String("to", "", "Last search day YYYY-MM-DD (default today UTC)"),
	}
}

func (f pullFlags) options(defaultTopicsFile string) (pipeline.PullOptions, error) {
	from, err := parseDay(*f.from)
	if err != nil {
		return pipeline.PullOptions{}, fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(*f.to)
	if err != nil {
		return pipeline.PullOptions{}, fmt.Errorf("--to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return pipeline.PullOptions{}, fmt.Errorf("--to must not be before --from")
	}

	topics := splitTopics(*f.topics)
	if len(topics) == 0 {
		path := strings.TrimSpace(*f.topicsFile)
		if path == "" {
			path = defaultTopicsFile
		}
		topics, err = source.ReadTopics(path)
		if err != nil {
			return pipeline.PullOptions{}, err
		}
	}
	if len(topics) == 0 {
		return pipeline.PullOptions{}, fmt.Errorf("no topics to search")
	}

	return pipeline.PullOptions{Topics: topics, From: from, To: to}, nil
}

func runPull(args []string) int {
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	pf := addPullFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	env, code := setup(ctx, "pull", envLoader)
	if code != 0 {
		return code
	}
	defer env.Close()

	opts, err := pf.options(env.cfg.TopicsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pull options: %v\n", err)
		return 2
	}

	svc, err := newService(env, true, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pull setup failed: %v\n", err)
		return 1
	}

	result, err := svc.Pull(ctx, opts)
	if err != nil {
		env.logger.Error().Err(err).Str("run_id", result.RunID).Msg("pull failed")
		fmt.Fprintf(os.Stderr, "Pull failed: %v\n", err)
		return 1
	}

	printPullResult(result)
	return 0
}

func runExtract(args []string) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	limit := fs.Int("limit", 1000, "Maximum articles to extract")
	batchSize := fs.Int("batch-size", pipeline.DefaultExtractBatchSize, "Articles per model round trip and commit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	if *batchSize <= 0 {
		fmt.Fprintln(os.Stderr, "--batch-size must be > 0")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	env, code := setup(ctx, "extract", envLoader)
	if code != 0 {
		return code
	}
	defer env.Close()

	svc, err := newService(env, false, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extract setup failed: %v\n", err)
		return 1
	}

	result, err := svc.Extract(ctx, pipeline.ExtractOptions{Limit: *limit, BatchSize: *batchSize})
	if err != nil {
		env.logger.Error().Err(err).Int("limit", *limit).Int("processed", result.Processed).Msg("extract failed")
		fmt.Fprintf(os.Stderr, "Extract failed: %v\n", err)
		return 1
	}

	fmt.Printf("extract processed=%d batches=%d limit=%d\n", result.Processed, result.Batches, *limit)
	return 0
}

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Hour, "Command timeout")
	pf := addPullFlags(fs)
	extractLimit := fs.Int("extract-limit", 5000, "Maximum articles to extract after pulling")
	batchSize := fs.Int("batch-size", pipeline.DefaultExtractBatchSize, "Articles per model round trip and commit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *extractLimit <= 0 || *batchSize <= 0 {
		fmt.Fprintln(os.Stderr, "--extract-limit and --batch-size must be > 0")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	env, code := setup(ctx, "process", envLoader)
	if code != 0 {
		return code
	}
	defer env.Close()

	opts, err := pf.options(env.cfg.TopicsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pull options: %v\n", err)
		return 2
	}

	svc, err := newService(env, true, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Process setup failed: %v\n", err)
		return 1
	}

	pulled, err := svc.Pull(ctx, opts)
	if err != nil {
		env.logger.Error().Err(err).Str("run_id", pulled.RunID).Msg("process pull stage failed")
		fmt.Fprintf(os.Stderr, "Process failed during pull: %v\n", err)
		return 1
	}
	printPullResult(pulled)

	extracted, err := svc.Extract(ctx, pipeline.ExtractOptions{Limit: *extractLimit, BatchSize: *batchSize})
	if err != nil {
		env.logger.Error().Err(err).Str("run_id", pulled.RunID).Msg("process extract stage failed")
		fmt.Fprintf(os.Stderr, "Process failed during extract: %v\n", err)
		return 1
	}
	fmt.Printf("extract processed=%d batches=%d limit=%d\n", extracted.Processed, extracted.Batches, *extractLimit)
	return 0
}

func printPullResult(result pipeline.PullResult) {
	fmt.Printf(
		"pull run_id=%s topics=%d candidates=%d unique=%d fetched=%d fetch_failed=%d empty=%d language_skipped=%d inserted=%d\n",
		result.RunID,
		result.Topics,
		result.Candidates,
		result.Unique,
		result.Fetched,
		result.FetchFailed,
		result.EmptyContent,
		result.LanguageSkipped,
		result.Inserted,
	)
}
