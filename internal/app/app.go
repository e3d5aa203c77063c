package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "pull":
		return runPull(args[1:])
	case "extract":
		return runExtract(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "recommend":
		return runRecommend(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "serve":
		return runServe(args[1:])
	case "hash-key":
		return runHashKey(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "newsdigest CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsdigest <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity and schema")
	fmt.Fprintln(os.Stderr, "  pull       Search topics, drop known titles, fetch and store articles")
	fmt.Fprintln(os.Stderr, "  extract    Build features for stored articles that have none")
	fmt.Fprintln(os.Stderr, "  process    Run pull + extract in sequence")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for process")
	fmt.Fprintln(os.Stderr, "  recommend  Print the articles most similar to one article")
	fmt.Fprintln(os.Stderr, "  validate   Validate saved NewsAPI response JSON files")
	fmt.Fprintln(os.Stderr, "  serve      Start Echo API server")
	fmt.Fprintln(os.Stderr, "  hash-key   Print a bcrypt hash for API_KEY_HASH")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"newsdigest <command> -h\" for command-specific flags.")
}
