package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	appconfig "tenderflow/config"
)

func lookupFor(url string) *HTTPLookup {
	cfg := &appconfig.Config{}
	cfg.Enrichment.Enabled = true
	cfg.Enrichment.URL = url
	return NewHTTPLookup(cfg)
}

func TestFindSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes":[{"symbol":"SIE.DE","quoteType":"EQUITY"}]}`))
	}))
	defer srv.Close()

	sym, ok := lookupFor(srv.URL).FindSymbol(context.Background(), "Siemens AG", "DEU")
	if !ok || sym != "SIE.DE" {
		t.Fatalf("unexpected result: %q %v", sym, ok)
	}
}

func TestFindSymbolSkipsNonEquity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes":[{"symbol":"SIEX","quoteType":"ETF"}]}`))
	}))
	defer srv.Close()

	if _, ok := lookupFor(srv.URL).FindSymbol(context.Background(), "Some Fund", ""); ok {
		t.Fatal("expected no match for non-equity quote")
	}
}

func TestFindSymbolServerErrorYieldsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, ok := lookupFor(srv.URL).FindSymbol(context.Background(), "Siemens AG", ""); ok {
		t.Fatal("expected no data on server error")
	}
}

func TestFindSymbolRejectsSentinelName(t *testing.T) {
	if _, ok := lookupFor("http://127.0.0.1:0").FindSymbol(context.Background(), "N/A", ""); ok {
		t.Fatal("sentinel name should not be looked up")
	}
}

func TestRecentQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"indicators":{"quote":[{"close":[100,101,104]}]}}]}}`))
	}))
	defer srv.Close()

	q, ok := lookupFor(srv.URL).RecentQuote(context.Background(), "SIE.DE")
	if !ok {
		t.Fatal("expected a quote")
	}
	if q.Price != 104 {
		t.Errorf("unexpected price: %f", q.Price)
	}
	if q.ChangePct < 3.9 || q.ChangePct > 4.1 {
		t.Errorf("unexpected change pct: %f", q.ChangePct)
	}
}

func TestDisabledLookup(t *testing.T) {
	var l Lookup = Disabled{}
	if _, ok := l.FindSymbol(context.Background(), "Siemens AG", ""); ok {
		t.Fatal("disabled lookup should find nothing")
	}
	if _, ok := l.RecentQuote(context.Background(), "SIE.DE"); ok {
		t.Fatal("disabled lookup should quote nothing")
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	cfg := &appconfig.Config{}
	if _, ok := New(cfg).(Disabled); !ok {
		t.Fatal("expected Disabled when enrichment is off")
	}
	cfg.Enrichment.Enabled = true
	if _, ok := New(cfg).(*HTTPLookup); !ok {
		t.Fatal("expected HTTPLookup when enrichment is on")
	}
}
