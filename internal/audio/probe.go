package audio

import (
	"context"
	"errors"
	"time"

	"github.com/rbright/jotter/internal/permission"
)

const defaultProbeInterval = 2 * time.Second

// PermissionProbe derives microphone permission from the selected source's
// mute state and polls it for changes.
type PermissionProbe struct {
	Input    string
	Fallback string
	Interval time.Duration

	list func(context.Context) ([]Device, error)
}

func NewPermissionProbe(input, fallback string, interval time.Duration) *PermissionProbe {
	return &PermissionProbe{Input: input, Fallback: fallback, Interval: interval, list: ListDevices}
}

// Query resolves the current permission. Pulse failures other than a muted
// selection are returned as errors and leave the caller's state untouched.
func (p *PermissionProbe) Query(ctx context.Context) (permission.State, error) {
	list := p.list
	if list == nil {
		list = ListDevices
	}
	devices, err := list(ctx)
	if err != nil {
		return permission.Prompt, err
	}
	if _, err := selectDeviceFromList(devices, p.Input, p.Fallback); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return permission.Denied, nil
		}
		return permission.Prompt, err
	}
	return permission.Granted, nil
}

// Watch polls until ctx ends and emits every successful reading. Consumers
// dedupe; the tracker may have been moved by a capture attempt since the last
// reading, so a repeated value can still be news to it.
func (p *PermissionProbe) Watch(ctx context.Context) <-chan permission.State {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	out := make(chan permission.State, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			state, err := p.Query(ctx)
			if err != nil {
				continue
			}
			select {
			case out <- state:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
