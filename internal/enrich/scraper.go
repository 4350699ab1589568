package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
	"github.com/newsfuse-hq/newsfuse-ingest/internal/logger"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/httpclient"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sources"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
	defaultDelay     = 500 * time.Millisecond
)

// Scraper fetches article pages and fills fields the provider API left empty
// (body, author, image) from OG tags. Articles that already carry a body are
// passed through untouched.
type Scraper struct {
	client httpclient.Client
	delay  time.Duration
	log    logger.Logger
}

// NewScraper constructs a scraper with the provided HTTP client (or default)
// and per-request throttle delay.
func NewScraper(client httpclient.Client, delay time.Duration, log logger.Logger) *Scraper {
	if client == nil {
		client = sources.DefaultHTTPClient()
	}
	if delay <= 0 {
		delay = defaultDelay
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Scraper{client: client, delay: delay, log: log}
}

// Enrich iterates articles, fetching pages for those missing a body (with
// throttling) and merging OG metadata. The input slice is never mutated.
func (s *Scraper) Enrich(ctx context.Context, desc sources.Descriptor, articles []domain.CandidateArticle) []domain.CandidateArticle {
	out := append([]domain.CandidateArticle(nil), articles...)

	fetched := 0
	for i, art := range articles {
		select {
		case <-ctx.Done():
			return out
		default:
		}

		if strings.TrimSpace(art.Body) != "" {
			continue
		}

		if fetched > 0 {
			timer := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out
			case <-timer.C:
			}
		}
		fetched++

		enriched, err := s.fetchAndParse(ctx, art)
		if err != nil {
			s.log.WarnObj("article metadata scrape failed", "metadata_error", map[string]any{
				"source_id": desc.ID,
				"url":       art.URL,
				"error":     err.Error(),
			})
			continue
		}
		out[i] = enriched
	}

	return out
}

func (s *Scraper) fetchAndParse(ctx context.Context, art domain.CandidateArticle) (domain.CandidateArticle, error) {
	resp, err := s.client.Get(ctx, art.URL, nil, nil)
	if err != nil {
		return art, fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != 200 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return art, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return art, err
	}

	updated := art
	if updated.Title == "" && meta.Title != "" {
		updated.Title = meta.Title
	}
	if meta.Description != "" {
		updated.Body = meta.Description
	}
	if updated.Author == "" && meta.Author != "" {
		updated.Author = meta.Author
	}
	if updated.ImageURL == "" && meta.ImageURL != "" {
		updated.ImageURL = resolveURL(meta.ImageURL, art.URL)
	}

	return updated, nil
}

type pageMeta struct {
	Title       string
	Description string
	Author      string
	ImageURL    string
}

func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	pm := pageMeta{}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pm.Title = firstNonEmpty(
		extract(`meta[property="og:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	pm.Description = firstNonEmpty(
		extract(`meta[property="og:description"]`),
		extract(`meta[name="description"]`),
	)
	pm.Author = firstNonEmpty(
		extract(`meta[property="article:author"]`),
		extract(`meta[name="author"]`),
	)
	pm.ImageURL = extract(`meta[property="og:image"]`)

	return pm, nil
}

// resolveURL resolves a possibly relative reference against the page URL.
func resolveURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refURL.IsAbs() {
		return refURL.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
