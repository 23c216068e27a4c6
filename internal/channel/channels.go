package channel

import (
	"context"
	"sync"

	"tenderflow/logger"
	"tenderflow/models"
)

type ChannelStats struct {
	RawSent      int64
	AlertSent    int64
	RawDropped   int64
	AlertDropped int64
}

// Channels carries notices between the pipeline stages: Raw from the scanner
// to the aggregator, Alerts from the aggregator to the notifier, Archive to
// the S3 writer. Archive is only allocated when archiving is enabled.
type Channels struct {
	Raw     chan models.RawNotice
	Alerts  chan models.HighValueNotice
	Archive chan models.HighValueNotice

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, alertBufferSize int, withArchive bool) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:    make(chan models.RawNotice, rawBufferSize),
		Alerts: make(chan models.HighValueNotice, alertBufferSize),
		log:    log,
	}
	if withArchive {
		c.Archive = make(chan models.HighValueNotice, alertBufferSize)
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"alert_buffer_size": alertBufferSize,
		"archive":           withArchive,
	}).Info("pipeline channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Alerts)
	if c.Archive != nil {
		close(c.Archive)
	}
	c.log.WithComponent("channels").Info("pipeline channels closed")
}

// SendRaw hands a notice to the aggregation stage. It blocks while the
// buffer is full so a slow pipeline applies backpressure to the scanner
// instead of dropping notices, and gives up on context cancellation.
func (c *Channels) SendRaw(ctx context.Context, n models.RawNotice) bool {
	select {
	case c.Raw <- n:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) Stats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
