// Package ratelimit throttles containment checks per session and channel.
// A burst of clipboard syncs or transfer attempts from one session is denied
// once it exceeds the channel's budget for the current window.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/ppiankov/podguard/internal/model"
)

// Limit defines the budget for one channel.
// Zero values mean no limit for that channel.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

// Config maps channels to their limits.
type Config map[model.Channel]*Limit

func (l *Limit) enabled() bool {
	return l != nil && l.MaxRequests > 0 && l.Window > 0
}

// HasLimits returns true if any channel has a configured limit.
func (c Config) HasLimits() bool {
	for _, l := range c {
		if l.enabled() {
			return true
		}
	}
	return false
}

// Validate rejects unknown channels and half-configured limits.
func (c Config) Validate() error {
	for ch, l := range c {
		switch ch {
		case model.ChannelClipboard, model.ChannelFile, model.ChannelNetwork,
			model.ChannelPeripheral, model.ChannelPrint, model.ChannelScreen:
		default:
			return fmt.Errorf("rate_limits: unknown channel %q", ch)
		}
		if l == nil {
			continue
		}
		if l.MaxRequests < 0 || l.Window < 0 {
			return fmt.Errorf("rate_limits.%s: negative values", ch)
		}
		if (l.MaxRequests > 0) != (l.Window > 0) {
			return fmt.Errorf("rate_limits.%s: max_requests and window must both be set", ch)
		}
	}
	return nil
}
