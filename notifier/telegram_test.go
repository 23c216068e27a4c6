package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	appconfig "tenderflow/config"
	"tenderflow/enrich"
	"tenderflow/internal/dedup"
	"tenderflow/models"
)

func testConfig(url string, enabled bool) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Notifier.Telegram.Enabled = enabled
	cfg.Notifier.Telegram.URL = url
	cfg.Notifier.Telegram.Token = "test-token"
	cfg.Notifier.Telegram.ChatID = "12345"
	cfg.Notifier.Telegram.ParseMode = "Markdown"
	return cfg
}

func fvalue(v float64) *float64 { return &v }

func testAlert(id string) models.HighValueNotice {
	return models.HighValueNotice{
		PublicationID:   id,
		PublicationDate: "20250115",
		BuyerName:       "Ministry of Transport",
		BuyerCountry:    "DEU",
		BuyerCity:       "Berlin",
		Title:           "Rail infrastructure renewal",
		NoticeURL:       "https://ted.europa.eu/en/notice/-/detail/" + id,
		Lots: []models.ConvertedLot{
			{
				LotRecord: models.LotRecord{
					LotID:          "LOT-1",
					TenderValue:    fvalue(20_000_000),
					TenderCurrency: "EUR",
					WinnerName:     "Acme Rail GmbH",
					WinnerCountry:  "DEU",
				},
				EURValue: 20_000_000,
			},
		},
		TotalValue: 20_000_000,
	}
}

type capturedSend struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func TestDeliverSendsMessage(t *testing.T) {
	var got capturedSend
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier(testConfig(server.URL, true), nil, dedup.NewStore(time.Hour, 100), enrich.Disabled{})
	n.Deliver(context.Background(), testAlert("123456-2025"))

	if calls != 1 {
		t.Fatalf("expected 1 send, got %d", calls)
	}
	if got.ChatID != "12345" {
		t.Errorf("expected chat_id 12345, got %s", got.ChatID)
	}
	if got.ParseMode != "Markdown" {
		t.Errorf("expected parse_mode Markdown, got %s", got.ParseMode)
	}
	if !strings.Contains(got.Text, "€20,000,000") {
		t.Errorf("expected formatted total in message, got %q", got.Text)
	}
	if !strings.Contains(got.Text, "Ministry of Transport") {
		t.Errorf("expected buyer name in message, got %q", got.Text)
	}
}

func TestDeliverSuppressesDuplicates(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier(testConfig(server.URL, true), nil, dedup.NewStore(time.Hour, 100), enrich.Disabled{})
	n.Deliver(context.Background(), testAlert("123456-2025"))
	n.Deliver(context.Background(), testAlert("123456-2025"))

	if calls != 1 {
		t.Fatalf("expected duplicate to be suppressed, got %d sends", calls)
	}
}

func TestDeliverRetriesPlainText(t *testing.T) {
	var sends []capturedSend
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s capturedSend
		json.NewDecoder(r.Body).Decode(&s)
		sends = append(sends, s)
		if len(sends) == 1 {
			// Typical Telegram response for broken Markdown entities.
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"can't parse entities"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	seen := dedup.NewStore(time.Hour, 100)
	n := NewNotifier(testConfig(server.URL, true), nil, seen, enrich.Disabled{})
	n.Deliver(context.Background(), testAlert("654321-2025"))

	if len(sends) != 2 {
		t.Fatalf("expected 2 send attempts, got %d", len(sends))
	}
	if sends[1].ParseMode != "" {
		t.Errorf("expected retry without parse_mode, got %q", sends[1].ParseMode)
	}
	if strings.Contains(sends[1].Text, "*") {
		t.Errorf("expected retry text without markup, got %q", sends[1].Text)
	}
	if !seen.Seen("654321-2025") {
		t.Error("expected publication marked after successful retry")
	}
}

func TestDeliverDropsAfterSecondFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	seen := dedup.NewStore(time.Hour, 100)
	n := NewNotifier(testConfig(server.URL, true), nil, seen, enrich.Disabled{})
	n.Deliver(context.Background(), testAlert("111111-2025"))

	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
	if seen.Seen("111111-2025") {
		t.Error("failed delivery must not mark the publication, a later cycle may retry")
	}
}

func TestDeliverDisabledMarksWithoutSending(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	seen := dedup.NewStore(time.Hour, 100)
	n := NewNotifier(testConfig(server.URL, false), nil, seen, enrich.Disabled{})
	n.Deliver(context.Background(), testAlert("222222-2025"))

	if calls != 0 {
		t.Fatalf("expected no HTTP calls when disabled, got %d", calls)
	}
	if !seen.Seen("222222-2025") {
		t.Error("expected publication marked in disabled mode")
	}
}

type stubLookup struct{}

func (stubLookup) FindSymbol(ctx context.Context, company, country string) (string, bool) {
	if company == "Acme Rail GmbH" {
		return "ACR.DE", true
	}
	return "", false
}

func (stubLookup) RecentQuote(ctx context.Context, symbol string) (enrich.Quote, bool) {
	return enrich.Quote{Symbol: symbol, Price: 42.5, ChangePct: 3.2}, true
}

func TestDeliverIncludesEnrichment(t *testing.T) {
	var got capturedSend
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier(testConfig(server.URL, true), nil, dedup.NewStore(time.Hour, 100), stubLookup{})
	n.Deliver(context.Background(), testAlert("333333-2025"))

	if !strings.Contains(got.Text, "ACR.DE") {
		t.Errorf("expected enrichment line with symbol, got %q", got.Text)
	}
}

func TestNotifierStartStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	alerts := make(chan models.HighValueNotice, 1)
	n := NewNotifier(testConfig(server.URL, false), alerts, dedup.NewStore(time.Hour, 100), enrich.Disabled{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := n.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := n.Start(ctx); err == nil {
		t.Error("expected error on double start")
	}

	alerts <- testAlert("444444-2025")
	time.Sleep(50 * time.Millisecond)

	cancel()
	n.Stop()

	if got := atomic.LoadInt64(&n.alertsIn); got != 1 {
		t.Errorf("expected 1 alert consumed, got %d", got)
	}
}
