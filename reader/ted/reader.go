package ted

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	appconfig "tenderflow/config"
	"tenderflow/internal/channel"
	"tenderflow/logger"
)

// Scanner owns the scan loop: one worker goroutine fetches the lookback
// window on every timer tick or manual trigger and feeds raw notices into
// the pipeline. Having a single worker serializes scans by construction, so
// an on-demand trigger arriving mid-scan waits instead of double-fetching.
type Scanner struct {
	config   *appconfig.Config
	client   *Client
	channels *channel.Channels
	trigger  chan struct{}
	limiter  *rate.Limiter
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// Metrics
	scansCompleted int64
	noticesFetched int64
	fetchErrors    int64
}

func NewScanner(cfg *appconfig.Config, channels *channel.Channels) *Scanner {
	pps := cfg.Scanner.PagesPerSec
	if pps <= 0 {
		pps = 2
	}
	return &Scanner{
		config:   cfg,
		client:   NewClient(cfg),
		channels: channels,
		trigger:  make(chan struct{}, 1),
		limiter:  rate.NewLimiter(rate.Limit(pps), 1),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scanner already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	log := s.log.WithComponent("ted_scanner").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"interval":      s.config.Scanner.Interval.String(),
		"lookback_days": s.config.Scanner.LookbackDays,
		"page_limit":    s.config.Scanner.PageLimit,
	}).Info("starting ted scanner")

	s.wg.Add(1)
	go s.run()

	return nil
}

func (s *Scanner) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.WithComponent("ted_scanner").Info("stopping ted scanner")
	s.wg.Wait()
	s.log.WithComponent("ted_scanner").WithFields(logger.Fields{
		"scans_completed": atomic.LoadInt64(&s.scansCompleted),
		"notices_fetched": atomic.LoadInt64(&s.noticesFetched),
		"fetch_errors":    atomic.LoadInt64(&s.fetchErrors),
	}).Info("ted scanner stopped")
}

// Trigger requests an on-demand scan. When one is already queued or in
// flight the request coalesces into it.
func (s *Scanner) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scanner) run() {
	defer s.wg.Done()

	log := s.log.WithComponent("ted_scanner").WithFields(logger.Fields{"worker": "scan_loop"})

	ticker := time.NewTicker(s.config.Scanner.Interval)
	defer ticker.Stop()

	// First scan right away rather than waiting a full interval.
	s.scan()

	for {
		select {
		case <-s.ctx.Done():
			log.Info("scan loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.scan()
		case <-s.trigger:
			log.Info("on-demand scan triggered")
			s.scan()
		}
	}
}

// scan fetches every page of the lookback window and feeds the notices into
// the raw channel. Fetch failures end the cycle with whatever pages already
// arrived; the next cycle re-fetches the same window, so partial coverage
// heals itself.
func (s *Scanner) scan() {
	start := time.Now()
	end := time.Now().UTC()
	from := end.AddDate(0, 0, -s.config.Scanner.LookbackDays)
	query := DateRangeQuery(from, end)

	log := s.log.WithComponent("ted_scanner").WithFields(logger.Fields{"query": query})
	log.Info("scan cycle started")

	fetched := 0
	page := 1
	for {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}

		resp, err := s.client.SearchPage(s.ctx, query, page)
		if err != nil {
			atomic.AddInt64(&s.fetchErrors, 1)
			log.WithError(err).WithFields(logger.Fields{"page": page}).Error("page fetch failed, ending cycle with partial results")
			break
		}

		if len(resp.Notices) == 0 {
			break
		}

		for _, notice := range resp.Notices {
			if !s.channels.SendRaw(s.ctx, notice) {
				return
			}
		}
		fetched += len(resp.Notices)

		log.WithFields(logger.Fields{
			"page":    page,
			"got":     len(resp.Notices),
			"fetched": fetched,
			"total":   resp.Total,
		}).Debug("page fetched")

		if fetched >= resp.Total || len(resp.Notices) < s.client.PageLimit() {
			break
		}
		page++
	}

	atomic.AddInt64(&s.scansCompleted, 1)
	atomic.AddInt64(&s.noticesFetched, int64(fetched))

	log.WithFields(logger.Fields{
		"notices":     fetched,
		"pages":       page,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("scan cycle finished")

	s.log.LogMetric("ted_scanner", "NoticesFetched", fetched, "counter", nil)
}
