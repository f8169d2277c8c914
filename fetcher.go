package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	// minTextLength is the longest extracted text still treated as empty
	minTextLength = 10
	maxBodyBytes  = 2 << 20
)

// browserHeaders make the request look like a desktop browser so trivial
// bot blocking does not hide the page
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Referer":                   "https://www.google.com/",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// javascriptMarkers flag pages that only render with scripts enabled
var javascriptMarkers = []string{"Javascript", "JavaScript"}

// ContentResult represents the result of fetching content
type ContentResult struct {
	Text string
}

// TextSource supplies scraped page text to the decision engine.
// ok is false when no usable text is available.
type TextSource interface {
	FetchText(ctx context.Context, url string, maxChars int) (text string, ok bool)
}

// ContentFetcher handles fetching and processing content from URLs
type ContentFetcher struct {
	handlers []ContentHandler
	client   *http.Client
	logger   Logger
}

// NewContentFetcher creates a fetcher with a bounded client and the handler
// chain for the configured output format
func NewContentFetcher(settings FetchSettings, logger Logger) *ContentFetcher {
	f := &ContentFetcher{
		client: &http.Client{Timeout: settings.Timeout},
		logger: logger,
	}

	// most specific first
	f.AddHandler(&PlainTextHandler{})
	if settings.Format == FormatMarkdown {
		f.AddHandler(NewMarkdownHandler())
	}
	f.AddHandler(&HTMLHandler{}) // fallback

	return f
}

// AddHandler adds a content handler to the chain
func (f *ContentFetcher) AddHandler(handler ContentHandler) {
	f.handlers = append(f.handlers, handler)
}

// FetchContent performs a single GET and extracts text using the handler chain
func (f *ContentFetcher) FetchContent(ctx context.Context, url string) (*ContentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	resp.Body = io.NopCloser(io.LimitReader(resp.Body, maxBodyBytes))

	for _, handler := range f.handlers {
		if handler.CanHandle(url, resp) {
			return handler.Handle(url, resp)
		}
	}

	return nil, fmt.Errorf("no handler found for %s", url)
}

// FetchText returns a bounded prefix of the page text. Every failure is soft:
// it is logged at debug level and reported as unavailable.
func (f *ContentFetcher) FetchText(ctx context.Context, url string, maxChars int) (string, bool) {
	if strings.TrimSpace(url) == "" {
		return "", false
	}

	content, err := f.FetchContent(ctx, url)
	if err != nil {
		f.logger.Debug("scrape failed", String("url", url), Err(err))
		return "", false
	}

	text, ok := applyTextPolicy(content.Text, maxChars)
	if !ok {
		f.logger.Debug("scraped text rejected", String("url", url))
	}
	return text, ok
}

// applyTextPolicy collapses whitespace, rejects script-only and near-empty
// pages, and truncates to maxChars runes
func applyTextPolicy(text string, maxChars int) (string, bool) {
	text = strings.Join(strings.Fields(text), " ")

	for _, marker := range javascriptMarkers {
		if strings.Contains(text, marker) {
			return "", false
		}
	}

	if utf8.RuneCountInString(text) <= minTextLength {
		return "", false
	}

	return truncateRunes(text, maxChars), true
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
