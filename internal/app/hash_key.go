package app

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"horse.fit/newsdigest/internal/auth"
)

func runHashKey(args []string) int {
	return hashKey(args, os.Stdin, os.Stdout)
}

func hashKey(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	key := fs.String("key", "", "API key to hash; read from stdin when empty")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	value := strings.TrimSpace(*key)
	if value == "" && stdin != nil {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintf(os.Stderr, "Failed to read key: %v\n", err)
			return 1
		}
		value = strings.TrimSpace(line)
	}
	if value == "" {
		fmt.Fprintln(os.Stderr, "an API key is required (--key or stdin)")
		return 2
	}

	hash, err := auth.HashAPIKey(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hash failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "API_KEY_HASH=%s\n", hash)
	return 0
}
