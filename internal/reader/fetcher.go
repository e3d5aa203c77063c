package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultFetchTimeout  = 12 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024

	defaultUserAgent = "newsdigest-fetcher/1.0"
)

// ErrEmptyContent means the page had no extractable main text.
var ErrEmptyContent = errors.New("reader extracted empty content")

// FetchOptions controls HTTP behavior for article fetching.
type FetchOptions struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	HTTPClient    *http.Client
}

// Content is what the fetcher could recover from one article page.
type Content struct {
	Maintext        string
	Title           string
	Description     string
	SourceDomain    string
	PublicationDate string
}

type Fetcher struct {
	timeout   time.Duration
	bodyLimit int64
	userAgent string
	client    *http.Client
}

func NewFetcher(opts FetchOptions) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyByteLimit
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{
		timeout:   timeout,
		bodyLimit: bodyLimit,
		userAgent: userAgent,
		client:    client,
	}
}

// Fetch downloads a page and extracts its readable text and metadata.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (Content, error) {
	if f == nil {
		return Content{}, fmt.Errorf("fetcher is not initialized")
	}
	page := strings.TrimSpace(pageURL)
	if page == "" {
		return Content{}, fmt.Errorf("page URL is required")
	}
	parsedURL, err := url.Parse(page)
	if err != nil {
		return Content{}, fmt.Errorf("parse page url: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return Content{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Content{}, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Content{}, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.bodyLimit))
	if err != nil {
		return Content{}, fmt.Errorf("read body: %w", err)
	}

	content := Content{SourceDomain: sourceDomain(resp.Request, parsedURL)}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/plain") {
		content.Maintext = CleanText(string(body))
		if content.Maintext == "" {
			return Content{}, ErrEmptyContent
		}
		return content, nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return Content{}, fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return Content{}, fmt.Errorf("render readability text: %w", err)
	}
	content.Maintext = CleanText(rendered.String())
	if content.Maintext == "" {
		return Content{}, ErrEmptyContent
	}

	meta, err := readMeta(body)
	if err != nil {
		return Content{}, err
	}
	content.Title = meta.title
	content.Description = meta.description
	if content.Description == "" {
		content.Description = CleanText(article.Excerpt())
	}
	content.PublicationDate = meta.published

	return content, nil
}

type pageMeta struct {
	title       string
	description string
	published   string
}

func readMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html metadata: %w", err)
	}

	meta := pageMeta{
		title: firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			metaContent(doc, `meta[name="twitter:title"]`),
			CleanText(doc.Find("title").First().Text()),
		),
		description: firstNonEmpty(
			metaContent(doc, `meta[name="description"]`),
			metaContent(doc, `meta[property="og:description"]`),
		),
	}

	published := firstNonEmpty(
		metaContent(doc, `meta[property="article:published_time"]`),
		metaContent(doc, `meta[name="pubdate"]`),
		metaContent(doc, `meta[name="date"]`),
		strings.TrimSpace(doc.Find("time[datetime]").First().AttrOr("datetime", "")),
	)
	meta.published = normalizeDate(published)
	return meta, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	return CleanText(doc.Find(selector).First().AttrOr("content", ""))
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// normalizeDate rewrites recognized timestamps as RFC3339 UTC and returns
// anything else unchanged.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC().Format(time.RFC3339)
		}
	}
	return raw
}

func sourceDomain(final *http.Request, requested *url.URL) string {
	host := ""
	if final != nil && final.URL != nil {
		host = final.URL.Hostname()
	}
	if host == "" && requested != nil {
		host = requested.Hostname()
	}
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// CleanText normalizes line endings and collapses extra in-line whitespace.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
