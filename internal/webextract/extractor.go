// Package webextract turns fetched HTML pages into canonical plain text by
// locating the main content container and rendering it as wrapped paragraphs.
package webextract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"gwi.com/campus-knowledge/internal/fetch"
	"gwi.com/campus-knowledge/internal/utils"
)

const (
	DefaultMinContentChars = 40
	DefaultWrapColumn      = 78
)

// noiseSelector lists elements that never carry page content.
const noiseSelector = "script, style, noscript, nav, header, footer, aside, form, iframe, frame, frameset, object, embed, svg, template"

var contentTokens = []string{"content", "article", "post", "entry", "main", "body-text", "story"}

var negativeTokens = []string{"nav", "menu", "sidebar", "footer", "header", "comment", "share", "cookie", "banner", "breadcrumb"}

type Options struct {
	// MinContentChars is the non-space length a candidate needs to be accepted
	// without falling through to later candidates.
	MinContentChars int
	// WrapColumn wraps paragraphs at this column; zero disables wrapping.
	WrapColumn    int
	IncludeLinks  bool
	IncludeImages bool
}

func DefaultOptions() Options {
	return Options{MinContentChars: DefaultMinContentChars, WrapColumn: DefaultWrapColumn}
}

// Page is the extracted form of a web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

type Extractor struct {
	fetcher *fetch.Client
	opts    Options
}

func NewExtractor(fetcher *fetch.Client, opts Options) *Extractor {
	return &Extractor{fetcher: fetcher, opts: opts}
}

// Extract fetches url and returns its main content. Fetch failures are
// reported as *fetch.FetchError; a page without content yields empty Text.
func (e *Extractor) Extract(ctx context.Context, url string) (*Page, error) {
	body, _, err := e.fetcher.Get(ctx, url, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}

	page, err := ExtractHTML(bytes.NewReader(body), e.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", url, err)
	}
	page.URL = url
	slog.Debug("Extracted web page", "url", url, "title", page.Title, "chars", len(page.Text))
	return page, nil
}

// ExtractHTML runs the content heuristic over an HTML document.
func ExtractHTML(r io.Reader, opts Options) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("head > title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	title = strings.Join(strings.Fields(title), " ")

	doc.Find(noiseSelector).Remove()

	return &Page{Title: title, Text: selectContent(doc, opts)}, nil
}

func selectContent(doc *goquery.Document, opts Options) string {
	best := ""
	for _, n := range candidates(doc) {
		text := renderText(n, opts)
		if opts.MinContentChars <= 0 || utils.CountNonSpace(text) >= opts.MinContentChars {
			if text != "" {
				return text
			}
		}
		if utils.CountNonSpace(text) > utils.CountNonSpace(best) {
			best = text
		}
	}
	return best
}

// candidates returns the possible content containers in preference order,
// without duplicates.
func candidates(doc *goquery.Document) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	add := func(s *goquery.Selection) {
		for _, n := range s.Nodes {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}

	add(doc.Find("main"))
	add(doc.Find(`[role="main"]`))
	add(doc.Find("[class], [id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return looksLikeContent(s)
	}))
	add(doc.Find("article"))
	add(doc.Find("body"))
	return out
}

func looksLikeContent(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "body" || goquery.NodeName(s) == "html" {
		return false
	}
	var tokens []string
	if class, ok := s.Attr("class"); ok {
		tokens = append(tokens, strings.Fields(strings.ToLower(class))...)
	}
	if id, ok := s.Attr("id"); ok {
		tokens = append(tokens, strings.ToLower(strings.TrimSpace(id)))
	}

	matched := false
	for _, tok := range tokens {
		for _, neg := range negativeTokens {
			if strings.Contains(tok, neg) {
				return false
			}
		}
		for _, want := range contentTokens {
			if strings.Contains(tok, want) {
				matched = true
			}
		}
	}
	return matched
}
