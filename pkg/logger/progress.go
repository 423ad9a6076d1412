package logger

import (
	"fmt"
	"sync"
	"time"
)

// DefaultProgressInterval is how often RowProgress logs while rows arrive
const DefaultProgressInterval = 2 * time.Second

// RowProgress logs how far the reading of a large export has got. The
// total row count is unknown while streaming, so only counts and rates
// are reported.
type RowProgress struct {
	mu       sync.Mutex
	log      Logger
	rows     int64
	started  time.Time
	lastLog  time.Time
	interval time.Duration
	now      func() time.Time
}

// RowProgressStats is a snapshot of a RowProgress
type RowProgressStats struct {
	Rows    int64         `json:"rows"`
	Elapsed time.Duration `json:"elapsed"`
	PerSec  float64       `json:"rows_per_sec"`
}

func (s RowProgressStats) String() string {
	return fmt.Sprintf("%d rows in %s (%.0f rows/sec)", s.Rows, s.Elapsed.Round(time.Millisecond), s.PerSec)
}

// NewRowProgress starts tracking rows read from source. A zero interval
// means DefaultProgressInterval.
func NewRowProgress(log Logger, source string, interval time.Duration) *RowProgress {
	if log == nil {
		log = GetGlobalLogger()
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	p := &RowProgress{
		log:      log.WithComponent("progress").WithField("source", source),
		interval: interval,
		now:      time.Now,
	}
	p.started = p.now()
	p.lastLog = p.started
	p.log.Info("Reading rows")
	return p
}

// Row records one data row
func (p *RowProgress) Row() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rows++
	if now := p.now(); now.Sub(p.lastLog) >= p.interval {
		p.lastLog = now
		p.log.WithField("rows", p.rows).Info("Still reading rows")
	}
}

func (p *RowProgress) Stats() RowProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := RowProgressStats{Rows: p.rows, Elapsed: p.now().Sub(p.started)}
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		stats.PerSec = float64(p.rows) / secs
	}
	return stats
}

// Done logs the final count. A non-nil err marks the read as failed.
func (p *RowProgress) Done(err error) {
	stats := p.Stats()
	log := p.log.WithFields(Fields{
		"rows":    stats.Rows,
		"elapsed": stats.Elapsed.String(),
	})
	if err != nil {
		log.WithError(err).Error("Reading rows failed")
		return
	}
	log.Infof("Finished reading: %s", stats)
}
