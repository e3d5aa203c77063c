package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultEndpoint       = "http://127.0.0.1:8855"
	DefaultBatchSize      = 16
	DefaultMaxLength      = 512
	DefaultRequestTimeout = 60 * time.Second
)

type ClientOptions struct {
	// Endpoint is the service base URL; /analyze and /embed hang off it.
	Endpoint string
	// EmbedEndpoint overrides the embedding URL. A path ending in
	// /v1/embeddings switches to the OpenAI request shape.
	EmbedEndpoint  string
	BatchSize      int
	MaxLength      int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client talks to the language model service over JSON/HTTP.
type Client struct {
	opts       ClientOptions
	analyzeURL string
	embedURL   string
	httpClient *http.Client
}

type analyzeRequest struct {
	Texts []string `json:"texts"`
}

type analyzeResponse struct {
	Docs []Doc `json:"docs"`
}

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func NewClient(options ClientOptions) *Client {
	opts := normalizeClientOptions(options)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	embedURL := resolveEndpoint(opts.Endpoint, "/embed")
	if strings.TrimSpace(opts.EmbedEndpoint) != "" {
		embedURL = strings.TrimSpace(opts.EmbedEndpoint)
	}

	return &Client{
		opts:       opts,
		analyzeURL: resolveEndpoint(opts.Endpoint, "/analyze"),
		embedURL:   embedURL,
		httpClient: httpClient,
	}
}

func normalizeClientOptions(opts ClientOptions) ClientOptions {
	normalized := opts
	if strings.TrimSpace(normalized.Endpoint) == "" {
		normalized.Endpoint = DefaultEndpoint
	}
	if normalized.BatchSize <= 0 {
		normalized.BatchSize = DefaultBatchSize
	}
	if normalized.MaxLength <= 0 {
		normalized.MaxLength = DefaultMaxLength
	}
	if normalized.RequestTimeout <= 0 {
		normalized.RequestTimeout = DefaultRequestTimeout
	}
	return normalized
}

func resolveEndpoint(base, path string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed + path
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + path
	return parsed.String()
}

// Analyze returns one Doc per input text, in input order.
func (c *Client) Analyze(ctx context.Context, texts []string) ([]Doc, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: client is nil", ErrModelUnavailable)
	}

	docs := make([]Doc, 0, len(texts))
	for start := 0; start < len(texts); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(texts))
		batch := texts[start:end]

		var parsed analyzeResponse
		if err := c.postJSON(ctx, c.analyzeURL, analyzeRequest{Texts: batch}, &parsed); err != nil {
			return nil, fmt.Errorf("analyze: %w", err)
		}
		if len(parsed.Docs) != len(batch) {
			return nil, fmt.Errorf("%w: analyze response count mismatch: requested=%d returned=%d", ErrModelUnavailable, len(batch), len(parsed.Docs))
		}
		for i := range parsed.Docs {
			if err := parsed.Docs[i].Validate(); err != nil {
				return nil, fmt.Errorf("%w: analyze doc %d: %v", ErrModelUnavailable, start+i, err)
			}
		}
		docs = append(docs, parsed.Docs...)
	}
	return docs, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: client is nil", ErrModelUnavailable)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(texts))
		batch := texts[start:end]

		payload := embedRequest{
			Texts:     batch,
			MaxLength: c.opts.MaxLength,
		}
		parsedEndpoint, err := url.Parse(c.embedURL)
		if err == nil && strings.HasSuffix(parsedEndpoint.Path, "/v1/embeddings") {
			payload = embedRequest{Input: batch}
		}

		var parsed embedResponse
		if err := c.postJSON(ctx, c.embedURL, payload, &parsed); err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}

		rows := parsed.Embeddings
		if len(rows) == 0 && len(parsed.Data) > 0 {
			sort.Slice(parsed.Data, func(i, j int) bool {
				return parsed.Data[i].Index < parsed.Data[j].Index
			})
			rows = make([][]float64, 0, len(parsed.Data))
			for _, row := range parsed.Data {
				rows = append(rows, row.Embedding)
			}
		}
		if len(rows) != len(batch) {
			return nil, fmt.Errorf("%w: embedding response count mismatch: requested=%d returned=%d", ErrModelUnavailable, len(batch), len(rows))
		}

		for _, row := range rows {
			vector := make([]float32, len(row))
			for i, value := range row {
				vector[i] = float32(value)
			}
			vectors = append(vectors, vector)
		}
	}
	return vectors, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrModelUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: service status %d: %s", ErrModelUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrModelUnavailable, err)
	}
	return nil
}
