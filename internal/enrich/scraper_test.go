package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/httpclient"
	"github.com/newsfuse-hq/newsfuse-ingest/pkg/sources"
)

// stubHTTPResponse implements httpclient.Response.
type stubHTTPResponse struct {
	body       []byte
	statusCode int
}

func (s stubHTTPResponse) Body() []byte         { return s.body }
func (s stubHTTPResponse) StatusCode() int      { return s.statusCode }
func (s stubHTTPResponse) Header(string) string { return "" }

// stubHTTPClient returns a single response and counts calls.
type stubHTTPClient struct {
	resp  httpclient.Response
	calls int
}

func (s *stubHTTPClient) Get(context.Context, string, map[string]string, map[string]string) (httpclient.Response, error) {
	s.calls++
	return s.resp, nil
}

const samplePage = `
<html>
  <head>
    <title>Fallback</title>
    <meta property="og:title" content="OG Title">
    <meta property="og:description" content="OG Desc">
    <meta name="author" content="Jane Doe">
    <meta property="og:image" content="/img/og.png">
  </head>
</html>`

func TestParseMetaPrefersOGTags(t *testing.T) {
	meta, err := parseMeta([]byte(samplePage))
	if err != nil {
		t.Fatalf("parseMeta: %v", err)
	}
	if meta.Title != "OG Title" || meta.Description != "OG Desc" {
		t.Fatalf("unexpected meta %#v", meta)
	}
	if meta.Author != "Jane Doe" || meta.ImageURL != "/img/og.png" {
		t.Fatalf("unexpected meta %#v", meta)
	}
}

func TestResolveURLHandlesRelative(t *testing.T) {
	got := resolveURL("/img.png", "https://example.com/articles/1")
	if got != "https://example.com/img.png" {
		t.Fatalf("resolveURL got %q", got)
	}

	if got := resolveURL("", "https://example.com"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}

	if got := resolveURL("https://cdn.example/a.png", "https://example.com"); got != "https://cdn.example/a.png" {
		t.Fatalf("absolute refs must pass through, got %q", got)
	}
}

func TestEnrichFillsOnlyMissingFields(t *testing.T) {
	client := &stubHTTPClient{resp: stubHTTPResponse{body: []byte(samplePage), statusCode: 200}}
	scraper := NewScraper(client, time.Millisecond, nil)
	desc := sources.Descriptor{ID: "s1"}

	articles := []domain.CandidateArticle{
		{ID: "a1", Title: "API Title", URL: "https://example.com/a1"},
		{ID: "a2", Title: "Has body", Body: "already here", URL: "https://example.com/a2"},
	}

	out := scraper.Enrich(context.Background(), desc, articles)
	if len(out) != 2 {
		t.Fatalf("expected 2 articles")
	}

	if out[0].Title != "API Title" {
		t.Fatalf("existing title must be kept, got %q", out[0].Title)
	}
	if out[0].Body != "OG Desc" || out[0].Author != "Jane Doe" {
		t.Fatalf("missing fields should be filled, got %+v", out[0])
	}
	if out[0].ImageURL != "https://example.com/img/og.png" {
		t.Fatalf("image url should be resolved, got %q", out[0].ImageURL)
	}

	if out[1].Body != "already here" {
		t.Fatalf("articles with a body must pass through")
	}
	if client.calls != 1 {
		t.Fatalf("only the body-less article should be scraped, got %d calls", client.calls)
	}

	// Input slice stays untouched.
	if articles[0].Body != "" {
		t.Fatalf("input must not be mutated")
	}
}

func TestEnrichStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &stubHTTPClient{resp: stubHTTPResponse{body: []byte(samplePage), statusCode: 200}}
	scraper := NewScraper(client, time.Millisecond, nil)

	out := scraper.Enrich(ctx, sources.Descriptor{ID: "s1"}, []domain.CandidateArticle{
		{ID: "a1", URL: "https://example.com/a1"},
	})
	if len(out) != 1 {
		t.Fatalf("originals must be returned on abort")
	}
	if client.calls != 0 {
		t.Fatalf("no fetches expected after cancellation")
	}
}
