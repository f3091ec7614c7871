// Package websearch provides the live web evidence source.
//
// Search runs the query through a search-grounded Gemini call and returns the
// response text plus the cited links. Web search is always an optional
// enhancement: every failure path degrades to an empty result instead of an
// error, so a broken or slow provider can never block an answer.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"google.golang.org/genai"

	"github.com/quill0/quill/internal/evidence"
)

// retryDelay is the backoff before the single retry of a failed provider call.
const retryDelay = 300 * time.Millisecond

// urlPattern matches http(s) URLs in free text. Fallback extraction for when
// the provider omits structured citation metadata.
var urlPattern = regexp.MustCompile(`https?://[^\s()<>"']+`)

// caller abstracts the grounded generation call so tests can script provider
// responses and failures.
type caller interface {
	call(ctx context.Context, query string) (*genai.GenerateContentResponse, error)
}

// Client is the web search source.
type Client struct {
	caller caller
	logger *slog.Logger
}

// genaiCaller is the production caller backed by the Gemini API with the
// GoogleSearch tool enabled.
type genaiCaller struct {
	client      *genai.Client
	model       string
	temperature float32
}

func (g *genaiCaller) call(ctx context.Context, query string) (*genai.GenerateContentResponse, error) {
	temp := g.temperature
	return g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(query),
		&genai.GenerateContentConfig{
			Temperature: &temp,
			Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		},
	)
}

// New creates a Client using the ambient Gemini API credentials.
func New(ctx context.Context, model string, temperature float32, logger *slog.Logger) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Client{
		caller: &genaiCaller{client: gc, model: model, temperature: temperature},
		logger: logger,
	}, nil
}

// newWithCaller wires a scripted caller. Test-only.
func newWithCaller(c caller, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{caller: c, logger: logger}
}

// Search runs a live web search for query.
//
// Links are deduplicated in first-seen order. Extraction tries the provider's
// structured citation and grounding metadata first, then falls back to regex
// extraction from the response text, so attribution survives a degraded
// provider response. On provider error or timeout it returns ("", nil).
func (c *Client) Search(ctx context.Context, query string) (string, []string) {
	var resp *genai.GenerateContentResponse
	err := retry.Do(
		func() error {
			var callErr error
			resp, callErr = c.caller.call(ctx, query)
			return callErr
		},
		retry.Attempts(2),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		c.logger.Warn("web search failed", "error", err)
		return "", nil
	}
	if resp == nil {
		return "", nil
	}

	text := resp.Text()
	links := structuredLinks(resp)
	if len(links) == 0 && text != "" {
		links = FallbackLinks(text)
	}

	c.logger.Debug("web search completed", "links", len(links), "text_len", len(text))
	return text, evidence.DedupeLinks(links)
}

// structuredLinks pulls URLs from citation and grounding metadata.
func structuredLinks(resp *genai.GenerateContentResponse) []string {
	var links []string
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if cand.CitationMetadata != nil {
			for _, cit := range cand.CitationMetadata.Citations {
				if cit != nil && cit.URI != "" {
					links = append(links, cit.URI)
				}
			}
		}
		if cand.GroundingMetadata != nil {
			for _, ch := range cand.GroundingMetadata.GroundingChunks {
				if ch != nil && ch.Web != nil && ch.Web.URI != "" {
					links = append(links, ch.Web.URI)
				}
			}
		}
	}
	return links
}

// FallbackLinks extracts URLs from free text, trimming trailing punctuation
// the pattern tends to swallow.
func FallbackLinks(text string) []string {
	raw := urlPattern.FindAllString(text, -1)
	links := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimRight(u, ".,;:!?)]}'\"")
		// Cheap sanity check before calling it a link.
		if len(u) > 10 && strings.Contains(u, ".") {
			links = append(links, u)
		}
	}
	return links
}
