// Package notifier delivers high-value award alerts to a Telegram chat. It is
// the terminal stage of the pipeline: deduplication happens here so that a
// notice is only marked as delivered once a send actually succeeded.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	appconfig "tenderflow/config"
	"tenderflow/enrich"
	"tenderflow/internal/dedup"
	"tenderflow/logger"
	"tenderflow/models"
)

const defaultTelegramURL = "https://api.telegram.org"

// Notifier consumes alert aggregates and sends one message per new
// publication id. Delivery is best-effort: a failed send is retried once as
// plain text and then dropped, never queued.
type Notifier struct {
	config    *appconfig.Config
	alertChan <-chan models.HighValueNotice
	seen      *dedup.Store
	formatter *Formatter
	enricher  enrich.Lookup
	client    *http.Client
	baseURL   string
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log

	// Metrics
	alertsIn     int64
	sent         int64
	duplicates   int64
	sendFailures int64
}

func NewNotifier(cfg *appconfig.Config, alertChan <-chan models.HighValueNotice, seen *dedup.Store, enricher enrich.Lookup) *Notifier {
	base := strings.TrimRight(cfg.Notifier.Telegram.URL, "/")
	if base == "" {
		base = defaultTelegramURL
	}
	timeout := cfg.Notifier.Telegram.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Notifier{
		config:    cfg,
		alertChan: alertChan,
		seen:      seen,
		formatter: NewFormatter(cfg),
		enricher:  enricher,
		client:    &http.Client{Timeout: timeout},
		baseURL:   base,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return fmt.Errorf("notifier already running")
	}
	n.running = true
	n.ctx = ctx
	n.mu.Unlock()

	n.log.WithComponent("notifier").WithFields(logger.Fields{
		"operation": "start",
		"enabled":   n.config.Notifier.Telegram.Enabled,
	}).Info("starting notifier")

	n.wg.Add(1)
	go n.worker()
	return nil
}

func (n *Notifier) Stop() {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()

	n.log.WithComponent("notifier").Info("stopping notifier")
	n.wg.Wait()
	n.log.WithComponent("notifier").WithFields(logger.Fields{
		"alerts_in":     atomic.LoadInt64(&n.alertsIn),
		"sent":          atomic.LoadInt64(&n.sent),
		"duplicates":    atomic.LoadInt64(&n.duplicates),
		"send_failures": atomic.LoadInt64(&n.sendFailures),
	}).Info("notifier stopped")
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	log := n.log.WithComponent("notifier")

	for {
		select {
		case <-n.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case alert, ok := <-n.alertChan:
			if !ok {
				log.Info("alert channel closed, worker stopping")
				return
			}
			atomic.AddInt64(&n.alertsIn, 1)
			n.Deliver(n.ctx, alert)
		}
	}
}

// Deliver sends a single alert, applying dedup before and marking only after
// a successful send. Duplicate ids and dropped sends return silently.
func (n *Notifier) Deliver(ctx context.Context, alert models.HighValueNotice) {
	log := n.log.WithComponent("notifier").WithFields(logger.Fields{
		"publication_id": alert.PublicationID,
	})

	if n.seen.Seen(alert.PublicationID) {
		atomic.AddInt64(&n.duplicates, 1)
		log.Debug("duplicate publication, alert suppressed")
		return
	}

	msg := n.formatter.Render(alert, n.enrichmentLines(ctx, alert))

	if !n.config.Notifier.Telegram.Enabled {
		log.WithFields(logger.Fields{"message": msg}).Info("telegram disabled, alert rendered only")
		n.seen.Mark(alert.PublicationID)
		return
	}

	if err := n.send(ctx, msg, n.config.Notifier.Telegram.ParseMode); err != nil {
		log.WithError(err).Warn("telegram send failed, retrying as plain text")
		if err := n.send(ctx, PlainText(msg), ""); err != nil {
			atomic.AddInt64(&n.sendFailures, 1)
			log.WithError(err).Error("telegram retry failed, alert dropped")
			return
		}
	}

	atomic.AddInt64(&n.sent, 1)
	n.seen.Mark(alert.PublicationID)
	log.Info("alert delivered")
}

// enrichmentLines builds market-context lines for the distinct winners of the
// alerted lots. Failures yield an empty slice.
func (n *Notifier) enrichmentLines(ctx context.Context, alert models.HighValueNotice) []string {
	var lines []string
	resolved := map[string]bool{}
	for _, lot := range alert.Lots {
		if lot.WinnerName == "" || lot.WinnerName == models.NA || resolved[lot.WinnerName] {
			continue
		}
		resolved[lot.WinnerName] = true

		symbol, ok := n.enricher.FindSymbol(ctx, lot.WinnerName, lot.WinnerCountry)
		if !ok {
			continue
		}
		quote, ok := n.enricher.RecentQuote(ctx, symbol)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("📈 %s (%s): %.2f (%+.1f%% 5d)", lot.WinnerName, quote.Symbol, quote.Price, quote.ChangePct))
	}
	return lines
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (n *Notifier) send(ctx context.Context, text, parseMode string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    n.config.Notifier.Telegram.ChatID,
		Text:      text,
		ParseMode: parseMode,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.config.Notifier.Telegram.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sendMessage returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
