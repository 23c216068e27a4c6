package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	appconfig "tenderflow/config"
	"tenderflow/logger"
	"tenderflow/models"
)

// DefaultThresholdEUR is the alert floor applied when the configuration does
// not set one.
const DefaultThresholdEUR = 15_000_000

// IsResultNotice reports whether a notice announces the outcome of a
// completed tender. The eForms form-type taxonomy is unstable across notice
// subtypes, so this is a substring match on "result" rather than an exact
// comparison; it is the single matching policy for the whole pipeline.
func IsResultNotice(n models.RawNotice) bool {
	formType := asString(n.Field(models.FieldFormType), "")
	return strings.Contains(strings.ToLower(formType), "result")
}

// Aggregator consumes raw notices, keeps award-result notices whose summed
// EUR award value meets the threshold, and emits them as alert aggregates.
// Per-notice faults never abort the worker: a malformed notice is logged and
// skipped.
type Aggregator struct {
	config      *appconfig.Config
	rawChan     <-chan models.RawNotice
	alertChan   chan<- models.HighValueNotice
	archiveChan chan<- models.HighValueNotice
	converter   *Converter
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log

	// Metrics
	noticesSeen   int64
	resultMatches int64
	alertsEmitted int64
}

// NewAggregator wires the aggregation stage between the raw notice channel
// and the alert channel. archiveChan may be nil when archiving is disabled.
func NewAggregator(cfg *appconfig.Config, conv *Converter, rawChan <-chan models.RawNotice, alertChan, archiveChan chan<- models.HighValueNotice) *Aggregator {
	return &Aggregator{
		config:      cfg,
		rawChan:     rawChan,
		alertChan:   alertChan,
		archiveChan: archiveChan,
		converter:   conv,
		wg:          &sync.WaitGroup{},
		log:         logger.GetLogger(),
	}
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("aggregator already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{"operation": "start"})

	numWorkers := a.config.Pipeline.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{"workers": numWorkers, "threshold_eur": a.threshold()}).Info("starting aggregator")

	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}
	return nil
}

func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("aggregator").Info("stopping aggregator")
	a.wg.Wait()
	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"notices_seen":   atomic.LoadInt64(&a.noticesSeen),
		"result_matches": atomic.LoadInt64(&a.resultMatches),
		"alerts_emitted": atomic.LoadInt64(&a.alertsEmitted),
	}).Info("aggregator stopped")
}

func (a *Aggregator) worker(workerID int) {
	defer a.wg.Done()

	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{"worker_id": workerID})

	for {
		select {
		case <-a.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case notice, ok := <-a.rawChan:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}
			atomic.AddInt64(&a.noticesSeen, 1)
			alert, keep := a.Aggregate(a.ctx, notice)
			if !keep {
				continue
			}
			atomic.AddInt64(&a.alertsEmitted, 1)
			a.emit(log, *alert)
		}
	}
}

func (a *Aggregator) emit(log *logger.Entry, alert models.HighValueNotice) {
	log.WithFields(logger.Fields{
		"publication_id": alert.PublicationID,
		"total_eur":      alert.TotalValue,
		"lots":           alert.LotCount(),
	}).Info("high-value award notice")

	select {
	case a.alertChan <- alert:
	case <-a.ctx.Done():
		return
	}

	if a.archiveChan != nil {
		select {
		case a.archiveChan <- alert:
		case <-a.ctx.Done():
		}
	}
}

// Aggregate evaluates one notice. It returns the alert aggregate and true
// only for award-result notices whose converted lot values sum to at least
// the threshold (inclusive). Lots with no tender value contribute nothing
// and are omitted from the result. The function is pure with respect to the
// notice: re-running it yields identical content.
func (a *Aggregator) Aggregate(ctx context.Context, n models.RawNotice) (*models.HighValueNotice, bool) {
	if !IsResultNotice(n) {
		return nil, false
	}
	atomic.AddInt64(&a.resultMatches, 1)

	lots := MatchLots(n)
	if len(lots) == 0 {
		return nil, false
	}

	var total float64
	converted := make([]models.ConvertedLot, 0, len(lots))
	for _, lot := range lots {
		if lot.TenderValue == nil {
			continue
		}
		eur := a.converter.Convert(ctx, *lot.TenderValue, lot.TenderCurrency)
		total += eur
		converted = append(converted, models.ConvertedLot{LotRecord: lot, EURValue: eur})
	}

	if total < a.threshold() {
		return nil, false
	}

	id := NoticeID(n)
	return &models.HighValueNotice{
		PublicationID:   id,
		PublicationDate: asString(n.Field(models.FieldPD), models.NA),
		BuyerName:       asString(n.Field(models.FieldBuyerName), models.NA),
		BuyerCountry:    asString(n.Field(models.FieldBuyerCountry), models.NA),
		BuyerCity:       asString(n.Field(models.FieldBuyerCity), models.NA),
		Title:           asString(n.Field(models.FieldNoticeTitle), models.NA),
		NoticeURL:       DetailURL(id),
		Lots:            converted,
		TotalValue:      total,
	}, true
}

func (a *Aggregator) threshold() float64 {
	if t := a.config.Pipeline.ThresholdEUR; t > 0 {
		return t
	}
	return DefaultThresholdEUR
}

// NoticeID extracts the publication identifier, trying the same fallback
// chain the TED response uses across API versions.
func NoticeID(n models.RawNotice) string {
	for _, field := range []string{models.FieldPublicationNumber, models.FieldND, models.FieldNoticeIdentifier} {
		if id := asString(n.Field(field), ""); id != "" {
			return id
		}
	}
	return models.NA
}

// DetailURL builds the public TED detail page link for a publication id.
func DetailURL(id string) string {
	if id == "" || id == models.NA {
		return "https://ted.europa.eu"
	}
	return fmt.Sprintf("https://ted.europa.eu/en/notice/-/detail/%s", id)
}
