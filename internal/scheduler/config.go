package scheduler

import (
	"time"

	"github.com/corridorlabs/roamsight/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	BackfillInterval  time.Duration
	DetectionInterval time.Duration
	BackfillBatchSize int
	JobTimeout        time.Duration

	// EnabledJobs restricts which jobs run. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		BackfillInterval:  3 * time.Minute,
		DetectionInterval: 15 * time.Minute,
		BackfillBatchSize: 10,
		JobTimeout:        5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BackfillInterval <= 0 {
		c.BackfillInterval = defaults.BackfillInterval
	}
	if c.DetectionInterval <= 0 {
		c.DetectionInterval = defaults.DetectionInterval
	}
	if c.BackfillBatchSize <= 0 {
		c.BackfillBatchSize = defaults.BackfillBatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		BackfillInterval:  cfg.Scheduler.BackfillInterval,
		DetectionInterval: cfg.Scheduler.DetectionInterval,
		BackfillBatchSize: cfg.Scheduler.BackfillBatchSize,
	}.withDefaults()
}
