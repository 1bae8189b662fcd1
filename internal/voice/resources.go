package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/dictation"
)

// resources is everything one capture attempt acquires. Attach methods report
// false once teardown has begun so late acquisitions can be released by the caller.
type resources struct {
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	mu       sync.Mutex
	timer    *time.Timer
	vizStop  chan struct{}
	stream   audio.Source
	graph    *audio.Context
	session  *dictation.Session
	tornDown bool
	ending   bool
	reason   error

	once sync.Once
}

func newResources(parent context.Context) *resources {
	ctx, cancel := context.WithCancel(parent)
	return &resources{ctx: ctx, cancel: cancel, started: time.Now()}
}

func (r *resources) setTimer(t *time.Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown {
		t.Stop()
		return false
	}
	r.timer = t
	return true
}

func (r *resources) stopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *resources) attachStream(s audio.Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown {
		return false
	}
	r.stream = s
	return true
}

func (r *resources) attachGraph(g *audio.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown {
		return false
	}
	r.graph = g
	return true
}

func (r *resources) attachSession(s *dictation.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown {
		return false
	}
	r.session = s
	return true
}

// startViz returns the stop channel for a new visualization loop, or nil after teardown.
func (r *resources) startViz() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tornDown || r.vizStop != nil {
		return nil
	}
	r.vizStop = make(chan struct{})
	return r.vizStop
}

// retire marks the attempt as ending from inside a session callback. Only the
// first caller gets true; later session events for the attempt are dropped.
func (r *resources) retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ending || r.tornDown {
		return false
	}
	r.ending = true
	return true
}

func (r *resources) retired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ending
}

func (r *resources) dictation() *dictation.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// markTornDown records why the attempt ended; the first reason wins.
func (r *resources) markTornDown(reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tornDown = true
	if r.reason == nil {
		r.reason = reason
	}
}

func (r *resources) outcome() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tornDown, r.reason
}

// teardown releases everything in dependency order exactly once.
func (r *resources) teardown(logger *slog.Logger) {
	r.once.Do(func() {
		r.mu.Lock()
		r.tornDown = true
		timer, vizStop := r.timer, r.vizStop
		stream, graph, session := r.stream, r.graph, r.session
		r.timer, r.stream, r.graph = nil, nil, nil
		r.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if vizStop != nil {
			close(vizStop)
		}
		if stream != nil {
			if err := stream.Close(); err != nil {
				logger.Warn("close microphone stream", "error", err.Error())
			}
		}
		if graph != nil {
			if dropped := graph.Disconnect(); dropped > 0 {
				logger.Debug("discarded partial audio frame", "samples", dropped)
			}
			if err := graph.Close(); err != nil {
				if errors.Is(err, audio.ErrContextClosed) {
					logger.Warn("audio context already closed")
				} else {
					logger.Warn("close audio context", "error", err.Error())
				}
			}
		}
		r.cancel()
		if session != nil {
			if err := session.Close(); err != nil {
				logger.Warn("close dictation session", "error", err.Error())
			}
			session.ClearTranscript()
		}
	})
}
