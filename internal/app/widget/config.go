package widget

import (
	"time"

	"freightdesk/internal/app/reconcile"
)

// Config holds the widget timing knobs.
type Config struct {
	PollInterval   time.Duration
	FallbackDelay  time.Duration
	// PublishTimeout bounds one broadcast publish, reconnect included.
	PublishTimeout time.Duration
	Tolerance      reconcile.Tolerance
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		FallbackDelay:  500 * time.Millisecond,
		PublishTimeout: 3 * time.Second,
		Tolerance:      reconcile.DefaultTolerance,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.FallbackDelay <= 0 {
		c.FallbackDelay = def.FallbackDelay
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = def.PublishTimeout
	}
	if c.Tolerance.Durable <= 0 {
		c.Tolerance.Durable = def.Tolerance.Durable
	}
	if c.Tolerance.Broadcast <= 0 {
		c.Tolerance.Broadcast = def.Tolerance.Broadcast
	}
	return c
}
