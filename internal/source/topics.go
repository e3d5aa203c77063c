package source

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type topicsFile struct {
	Topics []string `yaml:"topics"`
}

// ReadTopics loads search topics from a file. Files ending in .yaml or .yml
// hold a "topics" list; anything else is read one topic per line. Blank lines
// and lines starting with # are ignored and repeats are dropped.
func ReadTopics(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("topics file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}

	var raw []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var parsed topicsFile
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse topics yaml %s: %w", path, err)
		}
		raw = parsed.Topics
	default:
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			raw = append(raw, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan topics file: %w", err)
		}
	}

	return cleanTopics(raw), nil
}

func cleanTopics(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	topics := make([]string, 0, len(raw))
	for _, topic := range raw {
		topic = strings.TrimSpace(topic)
		if topic == "" || strings.HasPrefix(topic, "#") {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}
