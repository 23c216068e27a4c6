package ted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appconfig "tenderflow/config"
	"tenderflow/models"
)

// searchFields is the explicit field list requested from the search API,
// limited to what the pipeline consumes. Requesting everything trips the
// per-page field budget on the upstream side.
var searchFields = []string{
	"publication-number", "notice-identifier", "ND", "PD",
	"notice-type", "form-type", "notice-title",
	"buyer-name", "buyer-country", "buyer-city",
	"identifier-lot", "title-lot",
	"estimated-value-lot", "estimated-value-cur-lot",
	"result-value-lot", "result-value-cur-lot",
	"tender-value", "tender-value-cur",
	"winner-name", "winner-country", "winner-city",
	"organisation-name-tenderer", "organisation-country-tenderer",
	"organisation-city-tenderer",
	"total-value", "total-value-cur",
}

type searchRequest struct {
	Query              string   `json:"query"`
	Fields             []string `json:"fields"`
	Page               int      `json:"page"`
	Limit              int      `json:"limit"`
	Scope              string   `json:"scope"`
	PaginationMode     string   `json:"paginationMode"`
	OnlyLatestVersions bool     `json:"onlyLatestVersions"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Notices []models.RawNotice `json:"notices"`
	Total   int                `json:"total"`
}

// Client talks to the TED Search API v3.
type Client struct {
	baseURL string
	apiKey  string
	limit   int
	http    *http.Client
}

func NewClient(cfg *appconfig.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Source.TED.URL, "/"),
		apiKey:  cfg.Source.TED.APIKey,
		limit:   cfg.Scanner.PageLimit,
		http:    &http.Client{Timeout: cfg.Scanner.Timeout},
	}
}

// DateRangeQuery builds the expert query for a publication-date window. TED
// expects bare YYYYMMDD dates; a single-day window collapses to an equality
// match.
func DateRangeQuery(start, end time.Time) string {
	s := start.Format("20060102")
	e := end.Format("20060102")
	if s == e {
		return fmt.Sprintf("PD=%s", e)
	}
	return fmt.Sprintf("PD>=%s AND PD<=%s", s, e)
}

// SearchPage fetches one result page. A non-200 status is an error; the
// caller decides whether already-fetched pages are kept.
func (c *Client) SearchPage(ctx context.Context, query string, page int) (*SearchResponse, error) {
	body, err := json.Marshal(searchRequest{
		Query:              query,
		Fields:             searchFields,
		Page:               page,
		Limit:              c.limit,
		Scope:              "ALL",
		PaginationMode:     "PAGE_NUMBER",
		OnlyLatestVersions: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/notices/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("authentication failed, check TED_API_KEY")
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

// PageLimit exposes the configured page size for termination checks.
func (c *Client) PageLimit() int {
	return c.limit
}
