// Package indicator surfaces capture state as desktop notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/jotter/internal/config"
	"github.com/rbright/jotter/internal/fsm"
)

const (
	dispatchTimeout = 400 * time.Millisecond
	queueSize       = 32
	stickyTimeoutMS = 300000
)

// Notifier implements the controller's observer and error reporter. Work is
// queued to a single goroutine so callers never wait on DBus or Pulse.
type Notifier struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger

	notify  func(ctx context.Context, n notification) (uint32, error)
	dismiss func(ctx context.Context, id uint32) error
	cue     func(kind cueKind) error

	queueMu sync.Mutex
	queue   chan func(context.Context)
	closed  bool
	done    chan struct{}

	mu             sync.Mutex
	notificationID uint32
	state          fsm.State
}

// NewNotifier creates a notifier from config and starts its dispatch loop.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := &Notifier{
		cfg:     cfg,
		logger:  logger,
		notify:  desktopNotify,
		dismiss: desktopDismiss,
		queue:   make(chan func(context.Context), queueSize),
		done:    make(chan struct{}),
		state:   fsm.StateIdle,
	}
	n.cue = func(kind cueKind) error { return emitCue(kind, n.cfg) }
	go n.loop()
	return n
}

// Close drains queued work and stops the dispatch loop.
func (n *Notifier) Close() {
	n.queueMu.Lock()
	if n.closed {
		n.queueMu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.queueMu.Unlock()
	<-n.done
}

// StateChanged shows a sticky notification while connecting or listening and
// plays a cue when listening begins or ends.
func (n *Notifier) StateChanged(state fsm.State) {
	n.mu.Lock()
	prev := n.state
	n.state = state
	n.mu.Unlock()

	switch {
	case state == fsm.StateListening:
		n.playCue(cueStart)
	case prev == fsm.StateListening:
		n.playCue(cueStop)
	}

	if summary, ok := stateSummaries[state]; ok {
		n.enqueue(func(ctx context.Context) { n.show(ctx, summary, "", stickyTimeoutMS, urgencyNormal) })
		return
	}
	if state == fsm.StateIdle {
		n.enqueue(n.hide)
	}
}

// LevelChanged is ignored; notifications cannot render a meter.
func (n *Notifier) LevelChanged(int) {}

// LiveText mirrors the running transcript into the listening notification body.
func (n *Notifier) LiveText(text string) {
	if n.currentState() != fsm.StateListening {
		return
	}
	summary := stateSummaries[fsm.StateListening]
	n.enqueue(func(ctx context.Context) { n.show(ctx, summary, text, stickyTimeoutMS, urgencyNormal) })
}

// ReportError shows message as a short-lived error notification.
func (n *Notifier) ReportError(message string) {
	if message == "" {
		message = errorSummary
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.playCue(cueError)
	n.enqueue(func(ctx context.Context) { n.show(ctx, message, "", timeout, urgencyCritical) })
}

func (n *Notifier) currentState() fsm.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Notifier) enqueue(fn func(context.Context)) {
	if !n.cfg.Enable {
		return
	}
	n.queueMu.Lock()
	defer n.queueMu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- fn:
	default:
		n.logger.Debug("indicator queue full; dropping update")
	}
}

func (n *Notifier) loop() {
	defer close(n.done)
	for fn := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		fn(ctx)
		cancel()
	}
}

// show sends a replaceable notification and stores its ID.
func (n *Notifier) show(ctx context.Context, summary, body string, timeoutMS int, level urgency) {
	n.mu.Lock()
	replaceID := n.notificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "jotter"
	}

	id, err := n.notify(ctx, notification{
		appName:   appName,
		replaceID: replaceID,
		summary:   summary,
		body:      body,
		timeoutMS: timeoutMS,
		urgency:   level,
	})
	if err != nil {
		n.log("indicator dispatch failed", err)
		return
	}

	n.mu.Lock()
	n.notificationID = id
	n.mu.Unlock()
}

// hide closes the current notification ID when present.
func (n *Notifier) hide(ctx context.Context) {
	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return
	}
	if err := n.dismiss(ctx, id); err != nil {
		n.log("indicator dismiss failed", err)
	}
}

// playCue emits audio asynchronously; cues never overlap.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		cueMu.Lock()
		defer cueMu.Unlock()
		if err := n.cue(kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
