package executor

import "time"

// Cooldowns remembers when each key last fired and reports whether it is
// still cooling down. It is not safe for concurrent use; the Coordinator
// guards it with its own mutex.
type Cooldowns struct {
	last map[string]time.Time
	ttl  time.Duration
}

// NewCooldowns creates a tracker with the given cooldown length.
func NewCooldowns(ttl time.Duration) *Cooldowns {
	return &Cooldowns{
		last: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Active reports whether key fired less than ttl before now.
func (c *Cooldowns) Active(key string, now time.Time) bool {
	at, ok := c.last[key]
	return ok && now.Sub(at) < c.ttl
}

// Remaining returns how long key still cools down, or zero.
func (c *Cooldowns) Remaining(key string, now time.Time) time.Duration {
	at, ok := c.last[key]
	if !ok {
		return 0
	}
	if left := c.ttl - now.Sub(at); left > 0 {
		return left
	}
	return 0
}

// Mark starts the cooldown for key at now.
func (c *Cooldowns) Mark(key string, now time.Time) {
	c.last[key] = now
}

// Cleanup drops keys whose cooldown has ended.
func (c *Cooldowns) Cleanup(now time.Time) {
	for key, at := range c.last {
		if now.Sub(at) >= c.ttl {
			delete(c.last, key)
		}
	}
}
