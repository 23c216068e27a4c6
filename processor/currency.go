package processor

import (
	"context"
	"strings"
	"sync"

	"tenderflow/logger"
)

// fallbackRates maps currency codes to EUR per one unit. Snapshot taken from
// ECB reference rates, November 2024; refreshing goes through the optional
// live RateSource, not this table.
var fallbackRates = map[string]float64{
	"USD": 0.92,
	"GBP": 1.19,
	"CHF": 1.06,
	"SEK": 0.086,
	"NOK": 0.085,
	"DKK": 0.134,
	"PLN": 0.231,
	"CZK": 0.0395,
	"HUF": 0.0026,
	"RON": 0.201,
	"BGN": 0.511,
	"ISK": 0.0066,
	"TRY": 0.027,
	"JPY": 0.0061,
	"CNY": 0.127,
	"CAD": 0.66,
	"AUD": 0.60,
}

// RateSource supplies a live exchange rate. Implementations may fail for any
// reason; the converter treats every failure as "use the static table".
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// Converter turns amounts in arbitrary currencies into EUR. Conversion is
// non-fatal by contract: an unknown code logs a warning and passes the
// amount through unchanged so one odd notice never blocks a scan.
type Converter struct {
	live RateSource
	log  *logger.Log

	mu   sync.RWMutex
	seen map[string]struct{} // unknown codes already warned about
}

// NewConverter builds a converter backed by the static table. live may be
// nil to disable live lookups entirely.
func NewConverter(live RateSource) *Converter {
	return &Converter{
		live: live,
		log:  logger.GetLogger(),
		seen: make(map[string]struct{}),
	}
}

// Convert returns amount expressed in EUR. Empty and EUR inputs are a no-op,
// not a lookup. The live source is consulted first when configured and any
// error falls back to the static table silently.
func (c *Converter) Convert(ctx context.Context, amount float64, currency string) float64 {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == "EUR" {
		return amount
	}

	if c.live != nil {
		if rate, err := c.live.Rate(ctx, code, "EUR"); err == nil && rate > 0 {
			return amount * rate
		} else if err != nil {
			c.log.WithComponent("currency").WithError(err).
				WithFields(logger.Fields{"currency": code}).
				Debug("live rate lookup failed, using static table")
		}
	}

	if rate, ok := fallbackRates[code]; ok {
		return amount * rate
	}

	c.warnOnce(code)
	return amount
}

// UnknownCodes lists the currency codes the converter has passed through
// unconverted so far, for the end-of-scan report.
func (c *Converter) UnknownCodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	codes := make([]string, 0, len(c.seen))
	for code := range c.seen {
		codes = append(codes, code)
	}
	return codes
}

// warnOnce emits the unknown-code warning a single time per code so a feed
// full of the same exotic currency does not flood the log.
func (c *Converter) warnOnce(code string) {
	c.mu.Lock()
	_, dup := c.seen[code]
	if !dup {
		c.seen[code] = struct{}{}
	}
	c.mu.Unlock()
	if !dup {
		c.log.WithComponent("currency").WithFields(logger.Fields{
			"currency": code,
		}).Warn("unknown currency code, passing amount through unconverted")
	}
}
