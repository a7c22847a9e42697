package metrics

import (
	"context"
	"os"
	"runtime"
	"time"
)

// Collector periodically refreshes the system gauges
type Collector struct {
	metrics     *Metrics
	storagePath string
	interval    time.Duration
	startTime   time.Time
}

// NewCollector creates a new system metrics collector
func NewCollector(m *Metrics, storagePath string, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		metrics:     m,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
	}
}

// Run updates the gauges until ctx is done
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}
}
