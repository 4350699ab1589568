package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
)

// newsAPIAdapter maps NewsAPI.org /v2/everything responses onto CandidateArticle.
type newsAPIAdapter struct {
	client HTTPClient
}

// NewNewsAPIAdapter builds an adapter for NewsAPI-compatible providers.
func NewNewsAPIAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &newsAPIAdapter{client: client}
}

func (a *newsAPIAdapter) ID() string { return TypeNewsAPI }

func (a *newsAPIAdapter) Fetch(ctx context.Context, desc Descriptor, q Query) (Result, error) {
	if err := validateQuery(desc, q); err != nil {
		return Result{}, err
	}

	params := map[string]string{
		DialectString(desc, "query_param", "q"):            q.Text,
		DialectString(desc, "page_param", "page"):          strconv.Itoa(q.Page),
		DialectString(desc, "page_size_param", "pageSize"): strconv.Itoa(q.PageSize),
	}
	headers := map[string]string{}
	if key := desc.APIKey(); key != "" {
		headers[DialectString(desc, "api_key_header", "X-Api-Key")] = key
	}

	resp, err := a.client.Get(ctx, strings.TrimRight(desc.BaseURL, "/")+"/everything", params, headers)
	if err != nil {
		return Result{}, classifyTransport(desc, ctx, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return Result{}, classifyStatus(desc, resp)
	}

	var payload newsAPIResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Result{}, NewFetchError(desc.ID, KindInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	if payload.Status != "ok" {
		return Result{}, NewFetchError(desc.ID, KindInvalidResponse,
			fmt.Errorf("provider status %q: %s", payload.Status, payload.Message))
	}

	articles := make([]domain.CandidateArticle, 0, len(payload.Articles))
	for _, item := range payload.Articles {
		url := strings.TrimSpace(item.URL)
		if url == "" {
			continue
		}
		articles = append(articles, domain.CandidateArticle{
			ID:          ArticleID(desc.ID, url),
			Title:       strings.TrimSpace(item.Title),
			Body:        firstNonEmpty(item.Content, item.Description),
			URL:         url,
			Author:      strings.TrimSpace(item.Author),
			ImageURL:    strings.TrimSpace(item.URLToImage),
			PublishedAt: parsePublishedAt(item.PublishedAt),
			SourceID:    desc.ID,
			ProviderRef: firstNonEmpty(item.Source.ID, url),
		})
	}

	return Result{
		Articles: articles,
		HasMore:  q.Page*q.PageSize < payload.TotalResults,
	}, nil
}

// classifyTransport maps transport-level failures: deadline expiry becomes a
// timeout, everything else is a transient outage.
func classifyTransport(desc Descriptor, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewFetchError(desc.ID, KindTimeout, err)
	}
	return NewFetchError(desc.ID, KindUnavailable, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source      newsAPISource `json:"source"`
	Author      string        `json:"author"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Content     string        `json:"content"`
	URL         string        `json:"url"`
	URLToImage  string        `json:"urlToImage"`
	PublishedAt string        `json:"publishedAt"`
}

type newsAPISource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
