package logger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ProgressTracker reports how far a long loop has come, such as reconciling
// many series or walking a paginated API. Updates are rate limited to one
// log line per interval.
type ProgressTracker struct {
	log      Logger
	config   ProgressConfig
	started  time.Time
	done     atomic.Int64
	mu       sync.Mutex
	lastLine time.Time
}

// ProgressConfig configures a ProgressTracker
type ProgressConfig struct {
	Operation string
	// Unit names what is counted ("series", "records"). Defaults to "items".
	Unit string
	// Total is 0 when unknown, e.g. while paginating
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker starts tracking an operation
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval <= 0 {
		config.LogInterval = 5 * time.Second
	}
	if config.Unit == "" {
		config.Unit = "items"
	}

	now := time.Now()
	p := &ProgressTracker{
		log:      config.Logger.WithField("operation", config.Operation),
		config:   config,
		started:  now,
		lastLine: now,
	}
	p.log.WithField("total", config.Total).Debug("Starting operation")
	return p
}

// Add records delta more units of work
func (p *ProgressTracker) Add(delta int64) {
	done := p.done.Add(delta)

	p.mu.Lock()
	now := time.Now()
	due := now.Sub(p.lastLine) >= p.config.LogInterval
	if due {
		p.lastLine = now
	}
	p.mu.Unlock()

	if due {
		p.log.WithFields(p.fields(done, now)).Info("Progress update")
	}
}

// Increment records one unit of work
func (p *ProgressTracker) Increment() {
	p.Add(1)
}

// Complete logs the final count and rate
func (p *ProgressTracker) Complete() {
	stats := p.GetStats()
	p.log.WithFields(Fields{
		p.config.Unit: stats.Current,
		"duration":    stats.Duration.String(),
		"rate":        fmt.Sprintf("%.2f/sec", stats.Rate),
	}).Info("Operation completed")
}

// GetStats returns a snapshot of the progress so far
func (p *ProgressTracker) GetStats() ProgressStats {
	done := p.done.Load()
	elapsed := time.Since(p.started)

	stats := ProgressStats{
		Operation: p.config.Operation,
		Unit:      p.config.Unit,
		Total:     p.config.Total,
		Current:   done,
		Duration:  elapsed,
	}
	if elapsed > 0 {
		stats.Rate = float64(done) / elapsed.Seconds()
	}
	if p.config.Total > 0 {
		stats.Percentage = float64(done) / float64(p.config.Total) * 100
	}
	return stats
}

func (p *ProgressTracker) fields(done int64, now time.Time) Fields {
	fields := Fields{p.config.Unit: done}
	if p.config.Total > 0 {
		fields["total"] = p.config.Total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(done)/float64(p.config.Total)*100)
	}
	if elapsed := now.Sub(p.started).Seconds(); elapsed > 0 {
		fields["rate"] = fmt.Sprintf("%.2f/sec", float64(done)/elapsed)
	}
	return fields
}

// ProgressStats is a point-in-time view of a ProgressTracker
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Unit       string        `json:"unit"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
}

func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%)", ps.Operation, ps.Current, ps.Total, ps.Percentage)
	}
	return fmt.Sprintf("%s: %d %s", ps.Operation, ps.Current, ps.Unit)
}

// TimedOperation runs fn and logs how long it took. Failures are logged at
// error level and returned unchanged.
func TimedOperation(operation string, log Logger, fn func() error) error {
	if log == nil {
		log = GetGlobalLogger()
	}

	start := time.Now()
	err := fn()

	entry := log.WithFields(Fields{
		"operation": operation,
		"duration":  time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Operation failed")
		return err
	}
	entry.Debug("Operation completed")
	return nil
}
