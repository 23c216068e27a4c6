// Package enrich resolves winning-bidder names to public-market ticker
// symbols and recent price performance. It is a best-effort capability: every
// failure means "no data", never an error surfaced to the pipeline.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	appconfig "tenderflow/config"
	"tenderflow/logger"
)

// Quote is a recent price observation for a symbol.
type Quote struct {
	Symbol    string
	Price     float64
	ChangePct float64
}

// Lookup is the enrichment capability. A Disabled implementation is selected
// at startup when enrichment is off, so call sites never branch on
// availability.
type Lookup interface {
	FindSymbol(ctx context.Context, company, country string) (string, bool)
	RecentQuote(ctx context.Context, symbol string) (Quote, bool)
}

// Disabled is the no-op Lookup.
type Disabled struct{}

func (Disabled) FindSymbol(ctx context.Context, company, country string) (string, bool) {
	return "", false
}

func (Disabled) RecentQuote(ctx context.Context, symbol string) (Quote, bool) {
	return Quote{}, false
}

// HTTPLookup queries a Yahoo-Finance-compatible symbol search and chart API.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
	log     *logger.Log
}

func NewHTTPLookup(cfg *appconfig.Config) *HTTPLookup {
	base := strings.TrimRight(cfg.Enrichment.URL, "/")
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	timeout := cfg.Enrichment.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPLookup{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		log:     logger.GetLogger(),
	}
}

// New returns the configured Lookup implementation.
func New(cfg *appconfig.Config) Lookup {
	if cfg.Enrichment.Enabled {
		return NewHTTPLookup(cfg)
	}
	return Disabled{}
}

// FindSymbol searches for a listed equity matching the company name. The
// country narrows the search but is purely advisory; an empty result is
// normal for the many unlisted contractors.
func (l *HTTPLookup) FindSymbol(ctx context.Context, company, country string) (string, bool) {
	query := strings.TrimSpace(company)
	if query == "" || query == "N/A" {
		return "", false
	}
	if country != "" && country != "N/A" {
		query = query + " " + country
	}

	endpoint := fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=1&newsCount=0", l.baseURL, url.QueryEscape(query))

	var body struct {
		Quotes []struct {
			Symbol    string `json:"symbol"`
			QuoteType string `json:"quoteType"`
		} `json:"quotes"`
	}
	if !l.getJSON(ctx, endpoint, &body) {
		return "", false
	}
	for _, q := range body.Quotes {
		if q.QuoteType == "EQUITY" && q.Symbol != "" {
			return q.Symbol, true
		}
	}
	return "", false
}

// RecentQuote fetches the last five daily closes and reports the latest
// price with its percent change over the window.
func (l *HTTPLookup) RecentQuote(ctx context.Context, symbol string) (Quote, bool) {
	if symbol == "" {
		return Quote{}, false
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=5d&interval=1d", l.baseURL, url.PathEscape(symbol))

	var body struct {
		Chart struct {
			Result []struct {
				Indicators struct {
					Quote []struct {
						Close []float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	if !l.getJSON(ctx, endpoint, &body) {
		return Quote{}, false
	}

	if len(body.Chart.Result) == 0 || len(body.Chart.Result[0].Indicators.Quote) == 0 {
		return Quote{}, false
	}
	closes := body.Chart.Result[0].Indicators.Quote[0].Close
	if len(closes) == 0 {
		return Quote{}, false
	}

	last := closes[len(closes)-1]
	first := closes[0]
	if last <= 0 || first <= 0 {
		return Quote{}, false
	}

	return Quote{
		Symbol:    symbol,
		Price:     last,
		ChangePct: (last - first) / first * 100,
	}, true
}

func (l *HTTPLookup) getJSON(ctx context.Context, endpoint string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tenderflow)")

	resp, err := l.client.Do(req)
	if err != nil {
		l.log.WithComponent("enrich").WithError(err).Debug("enrichment request failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.log.WithComponent("enrich").WithFields(logger.Fields{"status": resp.StatusCode}).Debug("enrichment request rejected")
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		l.log.WithComponent("enrich").WithError(err).Debug("enrichment response undecodable")
		return false
	}
	return true
}
