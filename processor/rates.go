package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FrankfurterSource fetches live ECB reference rates from a
// frankfurter-compatible endpoint. It exists purely as an enrichment in
// front of the static table; callers must treat every error as retryable to
// the fallback.
type FrankfurterSource struct {
	baseURL string
	client  *http.Client
}

// NewFrankfurterSource builds a live rate source. baseURL defaults to the
// public frankfurter.app API when empty.
func NewFrankfurterSource(baseURL string, timeout time.Duration) *FrankfurterSource {
	if baseURL == "" {
		baseURL = "https://api.frankfurter.app"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FrankfurterSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Rate returns how many units of `to` one unit of `from` buys.
func (f *FrankfurterSource) Rate(ctx context.Context, from, to string) (float64, error) {
	endpoint := fmt.Sprintf("%s/latest?base=%s&symbols=%s",
		f.baseURL, url.QueryEscape(from), url.QueryEscape(to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}

	rate, ok := body.Rates[to]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no %s rate in response", to)
	}
	return rate, nil
}
