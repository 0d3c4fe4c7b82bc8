package producer

import (
	"errors"
	"fmt"
)

// Defaults for Config.
const (
	DefaultIntervalMs      = 12_000
	DefaultInitialPoolSize = 15
	DefaultReplenishBatch  = 10
	DefaultLogWindow       = 50

	// MaxIntervalMs is the longest accepted block time, one day.
	MaxIntervalMs = 24 * 60 * 60 * 1000
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("producer: invalid config")

// Config controls the scheduler.
type Config struct {
	// IntervalMs is the time between timer fires.
	IntervalMs int64

	// InitialPoolSize is the number of transactions generated at startup.
	InitialPoolSize int

	// ReplenishBatch is the number of transactions added before assembly
	// when the pool holds fewer than two blocks worth. Zero disables it.
	ReplenishBatch int

	// LogWindow is the number of trailing log entries in a snapshot.
	LogWindow int
}

// DefaultConfig returns a 12 second block time with a 15 transaction pool.
func DefaultConfig() Config {
	return Config{
		IntervalMs:      DefaultIntervalMs,
		InitialPoolSize: DefaultInitialPoolSize,
		ReplenishBatch:  DefaultReplenishBatch,
		LogWindow:       DefaultLogWindow,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.IntervalMs <= 0 || c.IntervalMs > MaxIntervalMs {
		return fmt.Errorf("%w: interval %dms", ErrInvalidConfig, c.IntervalMs)
	}
	if c.InitialPoolSize < 0 {
		return fmt.Errorf("%w: initial pool size %d", ErrInvalidConfig, c.InitialPoolSize)
	}
	if c.ReplenishBatch < 0 {
		return fmt.Errorf("%w: replenish batch %d", ErrInvalidConfig, c.ReplenishBatch)
	}
	if c.LogWindow < 0 {
		return fmt.Errorf("%w: log window %d", ErrInvalidConfig, c.LogWindow)
	}
	return nil
}
