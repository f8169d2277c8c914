package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Extraction formats for HTML pages
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// nonContentSelectors are dropped before reading page text
const nonContentSelectors = "script, style, template"

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// ContentHandler processes URLs based on response inspection
type ContentHandler interface {
	CanHandle(url string, resp *http.Response) bool
	Handle(url string, resp *http.Response) (*ContentResult, error)
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// PlainTextHandler passes text/plain bodies through untouched
type PlainTextHandler struct{}

func (h *PlainTextHandler) CanHandle(url string, resp *http.Response) bool {
	return mediaType(resp) == "text/plain"
}

func (h *PlainTextHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &ContentResult{Text: string(body)}, nil
}

// MarkdownHandler converts HTML pages to Markdown, keeping headings and link
// text that plain extraction flattens
type MarkdownHandler struct {
	converter *md.Converter
}

// NewMarkdownHandler creates a handler with a CommonMark converter
func NewMarkdownHandler() *MarkdownHandler {
	return &MarkdownHandler{converter: md.NewConverter("", true, nil)}
}

func (h *MarkdownHandler) CanHandle(url string, resp *http.Response) bool {
	mt := mediaType(resp)
	return mt == "" || mt == "text/html" || mt == "application/xhtml+xml"
}

func (h *MarkdownHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	markdown, err := h.converter.ConvertString(string(body))
	if err != nil {
		return nil, fmt.Errorf("converting HTML to markdown: %w", err)
	}

	return &ContentResult{Text: markdown}, nil
}

// HTMLHandler extracts visible text from any other response (fallback)
type HTMLHandler struct{}

func (h *HTMLHandler) CanHandle(url string, resp *http.Response) bool {
	return true
}

func (h *HTMLHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	doc.Find(nonContentSelectors).Remove()

	return &ContentResult{Text: visibleText(doc.Nodes)}, nil
}

// visibleText joins text nodes with a space so adjacent block elements do
// not run together the way Selection.Text does
func visibleText(nodes []*html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return b.String()
}
