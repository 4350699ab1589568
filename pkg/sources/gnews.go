package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
)

// gnewsAdapter maps GNews /api/v4/search responses onto CandidateArticle.
type gnewsAdapter struct {
	client HTTPClient
}

// NewGNewsAdapter builds an adapter for GNews-compatible providers.
func NewGNewsAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &gnewsAdapter{client: client}
}

func (a *gnewsAdapter) ID() string { return TypeGNews }

func (a *gnewsAdapter) Fetch(ctx context.Context, desc Descriptor, q Query) (Result, error) {
	if err := validateQuery(desc, q); err != nil {
		return Result{}, err
	}

	params := map[string]string{
		DialectString(desc, "query_param", "q"):       q.Text,
		DialectString(desc, "page_param", "page"):     strconv.Itoa(q.Page),
		DialectString(desc, "page_size_param", "max"): strconv.Itoa(q.PageSize),
	}
	if key := desc.APIKey(); key != "" {
		params[DialectString(desc, "api_key_param", "apikey")] = key
	}

	resp, err := a.client.Get(ctx, strings.TrimRight(desc.BaseURL, "/")+"/search", params, nil)
	if err != nil {
		return Result{}, classifyTransport(desc, ctx, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return Result{}, classifyStatus(desc, resp)
	}

	var payload gnewsResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Result{}, NewFetchError(desc.ID, KindInvalidResponse, fmt.Errorf("decode response: %w", err))
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
			ImageURL:    strings.TrimSpace(item.Image),
			PublishedAt: parsePublishedAt(item.PublishedAt),
			SourceID:    desc.ID,
			ProviderRef: url,
		})
	}

	return Result{
		Articles: articles,
		HasMore:  q.Page*q.PageSize < payload.TotalArticles,
	}, nil
}

type gnewsResponse struct {
	TotalArticles int            `json:"totalArticles"`
	Articles      []gnewsArticle `json:"articles"`
}

type gnewsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	PublishedAt string `json:"publishedAt"`
}
