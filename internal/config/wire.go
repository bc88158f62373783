package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/sadopc/pulse/internal/store"
	"github.com/sadopc/pulse/internal/tracker"
)

// StoreOptions maps the store section onto store options.
func (c Config) StoreOptions(log *zap.Logger) []store.Option {
	return []store.Option{
		store.WithLogger(log),
		store.WithPollInterval(c.Store.PollInterval),
		store.WithFlushInterval(c.Store.FlushInterval),
		store.WithRetry(100*time.Millisecond, 30*time.Second, c.Store.MaxRetries),
	}
}

// TrackerConfig maps the timer, tracker and archive sections onto a
// tracker configuration.
func (c Config) TrackerConfig(log *zap.Logger) (tracker.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return tracker.Config{}, err
	}
	policy, err := tracker.ParseDeletePolicy(c.Tracker.DeletePolicy)
	if err != nil {
		return tracker.Config{}, err
	}

	cfg := tracker.DefaultConfig()
	cfg.Location = loc
	cfg.DeletePolicy = policy
	cfg.AutoChain = c.Timer.AutoChain
	cfg.StaleAfter = c.Timer.StaleAfter
	cfg.ArchiveSchedule = c.Archive.Schedule
	cfg.CatchUp = c.Archive.CatchUp
	cfg.Logger = log
	return cfg, nil
}
