package source

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	DefaultNewsAPIEndpoint = "https://newsapi.org/v2/everything"
	DefaultNewsAPIPageSize = 100
	DefaultNewsAPILanguage = "en"
	DefaultNewsAPITimeout  = 20 * time.Second

	newsAPIDateLayout    = "2006-01-02"
	maxNewsAPIResponseSz = 16 << 20

	removedTitle = "[Removed]"
	removedHost  = "removed.com"
)

//go:embed newsapi_response.schema.json
var newsAPIResponseSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

type NewsAPIOptions struct {
	Endpoint   string
	APIKey     string
	Language   string
	PageSize   int
	HTTPClient *http.Client
}

// NewsAPIProvider searches the NewsAPI "everything" endpoint.
type NewsAPIProvider struct {
	endpoint string
	apiKey   string
	language string
	pageSize int
	client   *http.Client
}

// NewsAPIResponse is a decoded, schema-valid NewsAPI response body.
type NewsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code,omitempty"`
	Message      string           `json:"message,omitempty"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		ID   *string `json:"id"`
		Name *string `json:"name"`
	} `json:"source"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
	PublishedAt *string `json:"publishedAt"`
}

func NewNewsAPIProvider(opts NewsAPIOptions) (*NewsAPIProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("newsapi key is required")
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultNewsAPIEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("parse newsapi endpoint: %w", err)
	}
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = DefaultNewsAPILanguage
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > DefaultNewsAPIPageSize {
		pageSize = DefaultNewsAPIPageSize
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultNewsAPITimeout}
	}

	return &NewsAPIProvider{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(opts.APIKey),
		language: language,
		pageSize: pageSize,
		client:   client,
	}, nil
}

func (p *NewsAPIProvider) Name() string { return "newsapi" }

// Search fetches the first result page for the topic. Dates are sent as whole
// UTC days.
func (p *NewsAPIProvider) Search(ctx context.Context, query Query) ([]Article, error) {
	if p == nil {
		return nil, fmt.Errorf("newsapi provider is not initialized")
	}

	params := url.Values{}
	params.Set("q", query.Topic)
	params.Set("pageSize", strconv.Itoa(p.pageSize))
	params.Set("page", "1")
	params.Set("language", p.language)
	if !query.From.IsZero() {
		params.Set("from", query.From.UTC().Format(newsAPIDateLayout))
	}
	if !query.To.IsZero() {
		params.Set("to", query.To.UTC().Format(newsAPIDateLayout))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build newsapi request: %w", err)
	}
	req.Header.Set("X-Api-Key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxNewsAPIResponseSz))
	if err != nil {
		return nil, fmt.Errorf("read newsapi response: %w", err)
	}

	decoded, err := ValidateResponse(body)
	if err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("newsapi returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, err
	}
	if decoded.Status == "error" {
		return nil, fmt.Errorf("newsapi error code=%s (status %d): %s", decoded.Code, resp.StatusCode, decoded.Message)
	}

	articles := make([]Article, 0, len(decoded.Articles))
	for _, item := range decoded.Articles {
		title := strings.TrimSpace(item.Title)
		if title == "" || strings.TrimSpace(item.URL) == "" || isRemovedPlaceholder(title, item.URL) {
			continue
		}
		articles = append(articles, Article{
			Title:       item.Title,
			URL:         strings.TrimSpace(item.URL),
			Description: derefString(item.Description),
			SourceName:  derefString(item.Source.Name),
			PublishedAt: derefString(item.PublishedAt),
		})
	}
	return articles, nil
}

// NewsAPI keeps withdrawn stories in results as "[Removed]" stubs.
func isRemovedPlaceholder(title, rawURL string) bool {
	if title == removedTitle {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	return err == nil && strings.EqualFold(parsed.Hostname(), removedHost)
}

// ValidateResponse checks a raw NewsAPI body against the embedded schema and
// decodes it.
func ValidateResponse(raw []byte) (*NewsAPIResponse, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode newsapi JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var out NewsAPIResponse
	if err := json.Unmarshal(bytes.TrimSpace(raw), &out); err != nil {
		return nil, fmt.Errorf("unmarshal newsapi response: %w", err)
	}
	return &out, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("newsapi_response.schema.json", strings.NewReader(newsAPIResponseSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("newsapi_response.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
