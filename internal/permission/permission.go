// Package permission tracks process-wide microphone permission.
package permission

import (
	"context"
	"log/slog"
	"sync"
)

type State string

const (
	Prompt  State = "prompt"
	Granted State = "granted"
	Denied  State = "denied"
)

// Querier reports current microphone permission and streams later changes.
type Querier interface {
	Query(context.Context) (State, error)
	Watch(context.Context) <-chan State
}

// Tracker holds the live permission value shared by all capture attempts.
type Tracker struct {
	logger *slog.Logger

	mu       sync.RWMutex
	state    State
	onChange []func(State)

	subscribeOnce sync.Once
}

// NewTracker starts in Prompt until a query or capture attempt says otherwise.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{logger: logger, state: Prompt}
}

// State returns the current permission snapshot.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Set records a new permission value and fires change hooks when it differs.
func (t *Tracker) Set(state State) {
	t.mu.Lock()
	if t.state == state {
		t.mu.Unlock()
		return
	}
	previous := t.state
	t.state = state
	hooks := append([]func(State){}, t.onChange...)
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Info("microphone permission changed", "from", previous, "to", state)
	}
	for _, hook := range hooks {
		hook(state)
	}
}

// OnChange registers fn to run after every permission change.
func (t *Tracker) OnChange(fn func(State)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// Subscribe queries q once and then follows its change channel until ctx ends.
// Only the first call subscribes.
func (t *Tracker) Subscribe(ctx context.Context, q Querier) {
	if q == nil {
		return
	}
	t.subscribeOnce.Do(func() {
		state, err := q.Query(ctx)
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("microphone permission query failed", "error", err.Error())
			}
		} else {
			t.Set(state)
		}

		changes := q.Watch(ctx)
		if changes == nil {
			return
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case state, ok := <-changes:
					if !ok {
						return
					}
					t.Set(state)
				}
			}
		}()
	})
}
