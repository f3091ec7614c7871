package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const fetchUserAgent = "quill/1.0 (+https://github.com/quill0/quill)"

// Page is the extracted content of a fetched URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads pages and extracts their readable text. Fetches are
// rate-limited across all callers to stay polite to origin servers.
type Fetcher struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewFetcher(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		logger:  logger,
	}
}

// Fetch downloads rawURL and extracts the main article text. It prefers
// readability extraction and falls back to stripping the raw DOM when the
// page has no recognizable article structure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Page{}, fmt.Errorf("waiting for fetch slot: %w", err)
	}

	body, err := f.download(ctx, rawURL)
	if err != nil {
		return Page{}, err
	}

	page := Page{URL: rawURL}

	parsed, _ := url.Parse(rawURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		page.Title = article.Title
		page.Text = strings.TrimSpace(article.TextContent)
		return page, nil
	}

	// No article structure; fall back to the stripped DOM text.
	doc, qerr := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if qerr != nil {
		return Page{}, fmt.Errorf("parsing %s: %w", rawURL, qerr)
	}
	doc.Find("script, style, noscript").Remove()
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if page.Text == "" {
		return Page{}, fmt.Errorf("no extractable text at %s", rawURL)
	}
	return page, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		body     []byte
		visitErr error
	)

	c := colly.NewCollector(
		colly.UserAgent(fetchUserAgent),
		colly.MaxBodySize(10<<20),
		colly.StdlibContext(ctx),
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, visitErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from %s", rawURL)
	}
	return body, nil
}
