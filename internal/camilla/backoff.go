package camilla

import "time"

// BackoffConfig shapes the reconnect schedule: delays double from Initial up
// to Ceiling, and after MaxAttempts consecutive failures a single long
// Cooldown is inserted and the counter resets. The cooldown keeps a client
// from hammering an engine that has been down for a while.
type BackoffConfig struct {
	Initial     time.Duration
	Ceiling     time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// DefaultBackoffConfig returns the stock reconnect schedule.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:     2 * time.Second,
		Ceiling:     30 * time.Second,
		MaxAttempts: 3,
		Cooldown:    5 * time.Minute,
	}
}

// Backoff yields the wait before each reconnect attempt. Not safe for
// concurrent use; the reconnect loop is its only caller.
type Backoff struct {
	cfg     BackoffConfig
	attempt int
	delay   time.Duration
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg, delay: cfg.Initial}
}

// Next returns the delay before the upcoming attempt. Every MaxAttempts-th
// call yields the cooldown and resets the schedule.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	if b.attempt >= b.cfg.MaxAttempts {
		b.Reset()
		return b.cfg.Cooldown
	}

	d := b.delay
	b.delay *= 2
	if b.delay > b.cfg.Ceiling {
		b.delay = b.cfg.Ceiling
	}
	return d
}

// Reset restores the schedule after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.delay = b.cfg.Initial
}
