package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
)

// guardianAdapter maps Guardian Content API search responses onto CandidateArticle.
type guardianAdapter struct {
	client HTTPClient
}

// NewGuardianAdapter builds an adapter for the Guardian Content API.
func NewGuardianAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &guardianAdapter{client: client}
}

func (a *guardianAdapter) ID() string { return TypeGuardian }

func (a *guardianAdapter) Fetch(ctx context.Context, desc Descriptor, q Query) (Result, error) {
	if err := validateQuery(desc, q); err != nil {
		return Result{}, err
	}

	params := map[string]string{
		DialectString(desc, "query_param", "q"):             q.Text,
		DialectString(desc, "page_param", "page"):           strconv.Itoa(q.Page),
		DialectString(desc, "page_size_param", "page-size"): strconv.Itoa(q.PageSize),
		"show-fields": "bodyText,byline,thumbnail",
	}
	if key := desc.APIKey(); key != "" {
		params[DialectString(desc, "api_key_param", "api-key")] = key
	}

	resp, err := a.client.Get(ctx, strings.TrimRight(desc.BaseURL, "/")+"/search", params, nil)
	if err != nil {
		return Result{}, classifyTransport(desc, ctx, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return Result{}, classifyStatus(desc, resp)
	}

	var payload guardianEnvelope
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Result{}, NewFetchError(desc.ID, KindInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	if !strings.EqualFold(payload.Response.Status, "ok") {
		return Result{}, NewFetchError(desc.ID, KindInvalidResponse,
			fmt.Errorf("provider status %q", payload.Response.Status))
	}

	articles := make([]domain.CandidateArticle, 0, len(payload.Response.Results))
	for _, item := range payload.Response.Results {
		url := strings.TrimSpace(item.WebURL)
		if url == "" {
			continue
		}
		articles = append(articles, domain.CandidateArticle{
			ID:          ArticleID(desc.ID, url),
			Title:       strings.TrimSpace(item.WebTitle),
			Body:        strings.TrimSpace(item.Fields.BodyText),
			URL:         url,
			Author:      strings.TrimSpace(item.Fields.Byline),
			ImageURL:    strings.TrimSpace(item.Fields.Thumbnail),
			PublishedAt: parsePublishedAt(item.WebPublicationDate),
			SourceID:    desc.ID,
			ProviderRef: firstNonEmpty(item.ID, url),
		})
	}

	return Result{
		Articles: articles,
		HasMore:  payload.Response.CurrentPage < payload.Response.Pages,
	}, nil
}

type guardianEnvelope struct {
	Response guardianResponse `json:"response"`
}

type guardianResponse struct {
	Status      string           `json:"status"`
	CurrentPage int              `json:"currentPage"`
	Pages       int              `json:"pages"`
	Results     []guardianResult `json:"results"`
}

type guardianResult struct {
	ID                 string         `json:"id"`
	WebTitle           string         `json:"webTitle"`
	WebURL             string         `json:"webUrl"`
	WebPublicationDate string         `json:"webPublicationDate"`
	Fields             guardianFields `json:"fields"`
}

type guardianFields struct {
	BodyText  string `json:"bodyText"`
	Byline    string `json:"byline"`
	Thumbnail string `json:"thumbnail"`
}
