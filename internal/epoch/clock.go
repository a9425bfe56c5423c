package epoch

import (
	"sync"
	"time"
)

// Clock reports the current epoch. One epoch corresponds to one underlying
// ledger block; all scheduling in the service compares against this tick.
type Clock interface {
	Current() int64
}

// SystemClock derives the epoch from wall-clock time and a genesis instant.
type SystemClock struct {
	genesis      int64
	epochSeconds int64
}

// NewSystemClock creates a clock ticking every epochSeconds since genesisUnix.
func NewSystemClock(genesisUnix, epochSeconds int64) *SystemClock {
	if epochSeconds <= 0 {
		epochSeconds = 30
	}
	return &SystemClock{genesis: genesisUnix, epochSeconds: epochSeconds}
}

// Current returns the current epoch. Before genesis the epoch is 0.
func (c *SystemClock) Current() int64 {
	now := time.Now().Unix()
	if now <= c.genesis {
		return 0
	}
	return (now - c.genesis) / c.epochSeconds
}

// ManualClock is a settable clock for tests.
type ManualClock struct {
	mu    sync.Mutex
	epoch int64
}

// NewManualClock creates a manual clock starting at the given epoch.
func NewManualClock(epoch int64) *ManualClock {
	return &ManualClock{epoch: epoch}
}

// Current returns the manually set epoch.
func (c *ManualClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Set moves the clock to the given epoch.
func (c *ManualClock) Set(epoch int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch = epoch
}

// Advance moves the clock forward by n epochs.
func (c *ManualClock) Advance(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch += n
}
