package ingest

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/quill0/quill/internal/evidence"
	"github.com/quill0/quill/internal/llm"
)

// urlRe catches explicit URLs plus scheme-less forms people actually type:
// www-prefixed hosts and bare domains on common TLDs.
var urlRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+|\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:com|org|net|io|dev|edu|gov|co)\b(?:/[^\s<>"']*)?`)

const detectInstructions = `Extract every URL or web address mentioned in the message below, including ones written informally (e.g. "example dot com" stays out, but "example.com" counts). Output one URL per line with no other text. If there are none, output NONE.`

// Detector finds URLs in a user message. It unions a regex pass with a
// model-backed pass so both well-formed links and loosely written ones are
// caught. The model pass is best-effort: if it fails, regex results stand
// alone.
type Detector struct {
	gen    llm.Generator
	logger *slog.Logger
}

func NewDetector(gen llm.Generator, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{gen: gen, logger: logger}
}

// Detect returns the normalized, deduplicated URLs found in text, in
// first-seen order with regex hits before model-only hits.
func (d *Detector) Detect(ctx context.Context, text string) []string {
	found := regexURLs(text)

	if d.gen != nil {
		out, err := d.gen.Generate(ctx, detectInstructions+"\n\nMessage:\n"+text)
		if err != nil {
			d.logger.Debug("model url detection failed, using regex only", "error", err)
		} else {
			found = append(found, modelURLs(out)...)
		}
	}

	normalized := make([]string, 0, len(found))
	for _, u := range found {
		if n, ok := NormalizeURL(u); ok {
			normalized = append(normalized, n)
		}
	}
	return evidence.DedupeLinks(normalized)
}

func regexURLs(text string) []string {
	return urlRe.FindAllString(text, -1)
}

func modelURLs(out string) []string {
	var urls []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}

// NormalizeURL canonicalizes a detected URL: trailing punctuation is
// stripped, scheme-less forms get https, and anything that still does not
// parse as an absolute URL with a dotted host is rejected.
func NormalizeURL(raw string) (string, bool) {
	raw = strings.TrimRight(strings.TrimSpace(raw), ".,;:!?)]}'\"")
	if raw == "" {
		return "", false
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	return u.String(), true
}
