// Package retry computes supervised-restart backoff delays.
package retry

import "time"

const (
	DefaultFastPath = 300 * time.Millisecond
	DefaultBase     = 500 * time.Millisecond
	DefaultMax      = 30 * time.Second
)

// Policy maps a consecutive-failure count to a restart delay.
//
// Zero failures use FastPath. Otherwise the delay is Base*2^failures capped at Max.
type Policy struct {
	FastPath time.Duration
	Base     time.Duration
	Max      time.Duration
}

// DefaultPolicy returns the wake-listener restart schedule.
func DefaultPolicy() Policy {
	return Policy{FastPath: DefaultFastPath, Base: DefaultBase, Max: DefaultMax}
}

// Delay returns the wait before the next attempt after failures consecutive errors.
func (p Policy) Delay(failures int) time.Duration {
	p = p.withDefaults()
	if failures <= 0 {
		return min(p.FastPath, p.Max)
	}

	delay := p.Base
	for i := 0; i < failures; i++ {
		if delay >= p.Max {
			return p.Max
		}
		delay *= 2
	}
	delay = max(delay, p.FastPath)
	return min(delay, p.Max)
}

func (p Policy) withDefaults() Policy {
	if p.FastPath <= 0 {
		p.FastPath = DefaultFastPath
	}
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	return p
}
