// Package voice arbitrates between the wake-word listener and dictation
// sessions, owns capture teardown, and exposes the single capture-state surface.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/dictation"
	"github.com/rbright/jotter/internal/fsm"
	"github.com/rbright/jotter/internal/permission"
)

var (
	ErrBusy             = errors.New("capture already in progress")
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrMicrophone       = errors.New("could not access microphone")
	ErrConnectTimeout   = errors.New("connection timed out")
	ErrRemoteSession    = errors.New("connection error")
	ErrUnexpectedClose  = errors.New("connection closed unexpectedly")
	ErrStopped          = errors.New("capture stopped")
)

// User-facing error messages.
const (
	msgDenied          = "Microphone access denied"
	msgMicrophone      = "Could not access microphone"
	msgTimeout         = "Connection timed out"
	msgConnectionError = "Connection error: "
	msgUnexpectedClose = "Connection closed unexpectedly"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultMicReleaseDelay = 150 * time.Millisecond
	defaultSettleDelay     = 500 * time.Millisecond
	defaultFrameInterval   = 16 * time.Millisecond
	defaultErrorHold       = 2 * time.Second
)

// Observer receives state, level, and live transcript updates.
type Observer interface {
	StateChanged(fsm.State)
	LevelChanged(int)
	LiveText(string)
}

// Reporter receives human-readable error messages.
type Reporter interface {
	ReportError(string)
}

// Finalizer receives text the user sent with a "send" command.
type Finalizer interface {
	Finalize(ctx context.Context, text string) error
}

// LiveInput receives text left over by a "stop" command.
type LiveInput interface {
	SetInput(ctx context.Context, text string) error
}

// WakeListener is the controller-facing subset of wake.Listener.
type WakeListener interface {
	Start() error
	Stop()
	Active() bool
}

// Metrics is the subset of instrumentation the controller reports to.
type Metrics interface {
	dictation.Metrics
	SetState(state string, all []string)
	RecordAttempt()
	RecordFailure(reason string)
	ObserveConnect(time.Duration)
	SetLevel(int)
	RecordCommand(string)
}

type noopObserver struct{}

func (noopObserver) StateChanged(fsm.State) {}
func (noopObserver) LevelChanged(int)       {}
func (noopObserver) LiveText(string)        {}

type noopReporter struct{}

func (noopReporter) ReportError(string) {}

type noopMetrics struct{}

func (noopMetrics) RecordFrameSent()             {}
func (noopMetrics) RecordFrameDropped()          {}
func (noopMetrics) SetState(string, []string)    {}
func (noopMetrics) RecordAttempt()               {}
func (noopMetrics) RecordFailure(string)         {}
func (noopMetrics) ObserveConnect(time.Duration) {}
func (noopMetrics) SetLevel(int)                 {}
func (noopMetrics) RecordCommand(string)         {}

// Config tunes controller timing and the remote session.
type Config struct {
	Dictation       dictation.Config
	ConnectTimeout  time.Duration
	MicReleaseDelay time.Duration
	SettleDelay     time.Duration
	FrameInterval   time.Duration
	// ErrorHold is how long a failed session stays in Error before the
	// controller returns to Idle on its own. Permission denial never recovers.
	ErrorHold       time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.MicReleaseDelay < 0 {
		c.MicReleaseDelay = 0
	} else if c.MicReleaseDelay == 0 {
		c.MicReleaseDelay = defaultMicReleaseDelay
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	if c.ErrorHold <= 0 {
		c.ErrorHold = defaultErrorHold
	}
	if c.Dictation.SampleRate <= 0 {
		c.Dictation.SampleRate = audio.DefaultSampleRate
	}
	return c
}

// Deps are the controller's collaborators. Mic, Provider, and Permission are required.
type Deps struct {
	Mic        audio.Microphone
	Provider   dictation.Provider
	Permission *permission.Tracker
	Querier    permission.Querier
	Observer   Observer
	Reporter   Reporter
	Finalizer  Finalizer
	LiveInput  LiveInput
	Metrics    Metrics
	Logger     *slog.Logger
}

// Controller is the capture state machine.
type Controller struct {
	cfg        Config
	mic        audio.Microphone
	provider   dictation.Provider
	permission *permission.Tracker
	querier    permission.Querier
	observer   Observer
	reporter   Reporter
	finalizer  Finalizer
	liveInput  LiveInput
	metrics    Metrics
	logger     *slog.Logger

	mu      sync.RWMutex
	state   fsm.State
	level   int
	res     *resources
	settle  *time.Timer
	errHold *time.Timer
	wake    WakeListener
	baseCtx context.Context
}

func NewController(cfg Config, deps Deps) *Controller {
	c := &Controller{
		cfg:        cfg.withDefaults(),
		mic:        deps.Mic,
		provider:   deps.Provider,
		permission: deps.Permission,
		querier:    deps.Querier,
		observer:   deps.Observer,
		reporter:   deps.Reporter,
		finalizer:  deps.Finalizer,
		liveInput:  deps.LiveInput,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		state:      fsm.StateIdle,
		baseCtx:    context.Background(),
	}
	if c.permission == nil {
		c.permission = permission.NewTracker(c.logger)
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if c.reporter == nil {
		c.reporter = noopReporter{}
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// AttachWake wires the wake listener. Its gate should call WakeAllowed.
func (c *Controller) AttachWake(w WakeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wake = w
}

// State returns the live capture state.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Level returns the latest input level in [0, 100].
func (c *Controller) Level() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// Permission returns the shared microphone permission.
func (c *Controller) Permission() permission.State {
	return c.permission.State()
}

// WakeAllowed is the wake listener gate: idle with microphone access granted.
func (c *Controller) WakeAllowed() bool {
	return c.State() == fsm.StateIdle && c.permission.State() == permission.Granted
}

// Activate subscribes to permission changes and arms the wake listener.
// Activate must not be called with a context that is about to end.
func (c *Controller) Activate(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	c.permission.OnChange(func(state permission.State) {
		if state == permission.Granted && c.State() == fsm.StateIdle {
			c.scheduleWake()
		}
	})
	c.permission.Subscribe(ctx, c.querier)
	c.metrics.SetState(string(c.State()), stateNames())

	if c.WakeAllowed() {
		c.scheduleWake()
	}
}

// Shutdown tears down any active attempt and stops the wake listener.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	c.stopRecoveryLocked()
	res := c.res
	wake := c.wake
	c.wake = nil
	c.mu.Unlock()

	if wake != nil {
		wake.Stop()
	}
	if res != nil {
		c.fullStop(res, fsm.StateIdle, ErrStopped, false)
	}
}

// Toggle starts capture from Idle or Error and stops it otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.State().CanStart() {
		return c.Start(ctx)
	}
	c.Stop()
	return nil
}

// Stop performs a manual full stop to Idle from any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	res := c.res
	if res == nil {
		if c.state == fsm.StateError {
			c.stopRecoveryLocked()
			c.state = fsm.StateIdle
			c.mu.Unlock()
			c.stateChanged(fsm.StateIdle)
			c.afterIdle()
			return
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.fullStop(res, fsm.StateIdle, ErrStopped, false)
}

// Start runs one capture attempt and blocks until the session is listening
// or the attempt has ended. It returns ErrBusy outside Idle and Error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.CanStart() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.permission.State() == permission.Denied {
		c.mu.Unlock()
		return ErrPermissionDenied
	}
	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	c.stopRecoveryLocked()
	res := newResources(c.baseCtx)
	c.res = res
	c.state = next
	wake := c.wake
	c.mu.Unlock()

	stopWatch := context.AfterFunc(ctx, func() { c.fullStop(res, fsm.StateIdle, ErrStopped, false) })
	defer stopWatch()

	c.metrics.RecordAttempt()
	c.stateChanged(next)
	c.logger.Info("capture starting")

	if wake != nil {
		wake.Stop()
	}

	select {
	case <-time.After(c.cfg.MicReleaseDelay):
	case <-res.ctx.Done():
		return c.abandoned(res)
	}

	source, err := c.mic.Open(res.ctx)
	if err != nil {
		return c.micFailed(res, err)
	}
	if !res.attachStream(source) {
		_ = source.Close()
		return c.abandoned(res)
	}
	c.permission.Set(permission.Granted)

	if !c.advance(res, fsm.EventGranted) {
		return c.abandoned(res)
	}

	graph := audio.NewContext(source)
	if !res.attachGraph(graph) {
		_ = graph.Close()
		return c.abandoned(res)
	}
	if !c.advance(res, fsm.EventAudioReady) {
		return c.abandoned(res)
	}

	session := dictation.NewSession(c.provider, c.cfg.Dictation, dictation.Options{
		Logger:  c.logger,
		Metrics: c.metrics,
	})
	if !res.attachSession(session) {
		_ = session.Close()
		return c.abandoned(res)
	}
	if err := session.Open(res.ctx, c.callbacks(res)); err != nil {
		if torn, _ := res.outcome(); torn || res.ctx.Err() != nil {
			return c.abandoned(res)
		}
		c.reporter.ReportError(msgConnectionError + err.Error())
		c.metrics.RecordFailure("connect")
		c.fullStop(res, fsm.StateIdle, fmt.Errorf("%w: %w", ErrRemoteSession, err), false)
		return c.abandoned(res)
	}

	if !c.advance(res, fsm.EventOpened) {
		return c.abandoned(res)
	}
	c.metrics.ObserveConnect(time.Since(res.started))
	c.logger.Info("capture listening")

	graph.Connect(func(frame audio.Frame) { session.Push(frame) })
	graph.Resume()
	if stop := res.startViz(); stop != nil {
		go c.visualize(res, graph, stop)
	}
	return nil
}

// micFailed maps a microphone open error onto the attempt outcome.
func (c *Controller) micFailed(res *resources, err error) error {
	if torn, _ := res.outcome(); torn || res.ctx.Err() != nil {
		return c.abandoned(res)
	}
	if errors.Is(err, audio.ErrPermissionDenied) {
		c.permission.Set(permission.Denied)
		c.reporter.ReportError(msgDenied)
		c.metrics.RecordFailure("denied")
		c.fullStop(res, fsm.StateError, ErrPermissionDenied, true)
		return ErrPermissionDenied
	}
	c.logger.Error("open microphone", "error", err.Error())
	c.reporter.ReportError(msgMicrophone)
	c.metrics.RecordFailure("microphone")
	c.fullStop(res, fsm.StateIdle, fmt.Errorf("%w: %w", ErrMicrophone, err), false)
	return c.abandoned(res)
}

// abandoned returns why res ended, tearing it down if nobody has yet.
func (c *Controller) abandoned(res *resources) error {
	c.fullStop(res, fsm.StateIdle, ErrStopped, false)
	_, reason := res.outcome()
	if reason == nil {
		return ErrStopped
	}
	return reason
}

// advance applies event for res. It fails once res is no longer current.
func (c *Controller) advance(res *resources, event fsm.Event) bool {
	c.mu.Lock()
	if c.res != res {
		c.mu.Unlock()
		return false
	}
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("capture transition rejected", "error", err.Error())
		return false
	}
	c.state = next
	switch next {
	case fsm.StateInitializingAudio:
		timer := time.AfterFunc(c.cfg.ConnectTimeout, func() { c.onTimeout(res) })
		res.setTimer(timer)
	case fsm.StateListening:
		res.stopTimer()
	}
	c.mu.Unlock()

	c.stateChanged(next)
	return true
}

func (c *Controller) onTimeout(res *resources) {
	c.mu.RLock()
	current := c.res == res && c.state.Pending()
	c.mu.RUnlock()
	if !current {
		return
	}
	c.logger.Warn("capture connect timed out", "timeout", c.cfg.ConnectTimeout.String())
	c.reporter.ReportError(msgTimeout)
	c.metrics.RecordFailure("timeout")
	c.fullStop(res, fsm.StateIdle, ErrConnectTimeout, false)
}

// fullStop tears down res and settles in final. Only the first call for a
// given attempt does anything. denied marks a permission-denied ending.
func (c *Controller) fullStop(res *resources, final fsm.State, reason error, denied bool) {
	c.mu.Lock()
	if res == nil || c.res != res {
		c.mu.Unlock()
		return
	}
	c.res = nil
	c.mu.Unlock()

	res.markTornDown(reason)
	res.teardown(c.logger)
	c.setLevel(0)
	c.observer.LiveText("")

	event := fsm.EventStop
	if final == fsm.StateError {
		event = fsm.EventFail
	}
	c.mu.Lock()
	next, err := fsm.Transition(c.state, event)
	if denied {
		next, err = fsm.Transition(c.state, fsm.EventDenied)
	}
	if err != nil {
		next = final
	}
	c.state = next
	c.mu.Unlock()

	if reason != nil && !errors.Is(reason, ErrStopped) {
		c.logger.Info("capture ended", "state", string(next), "reason", reason.Error())
	} else {
		c.logger.Info("capture ended", "state", string(next))
	}
	c.stateChanged(next)
	switch {
	case next == fsm.StateIdle:
		c.afterIdle()
	case next == fsm.StateError && !denied:
		c.scheduleRecovery()
	}
}

// scheduleRecovery returns a failed session to Idle after ErrorHold so the
// wake listener can come back without a manual stop.
func (c *Controller) scheduleRecovery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRecoveryLocked()
	c.errHold = time.AfterFunc(c.cfg.ErrorHold, c.recoverFromError)
}

func (c *Controller) stopRecoveryLocked() {
	if c.errHold != nil {
		c.errHold.Stop()
		c.errHold = nil
	}
}

func (c *Controller) recoverFromError() {
	c.mu.Lock()
	c.errHold = nil
	if c.state != fsm.StateError || c.res != nil {
		c.mu.Unlock()
		return
	}
	next, err := fsm.Transition(c.state, fsm.EventStop)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	c.logger.Info("capture recovered from error")
	c.stateChanged(next)
	c.afterIdle()
}

// afterIdle arms the settle timer that restarts the wake listener.
func (c *Controller) afterIdle() {
	if c.permission.State() != permission.Granted {
		return
	}
	c.scheduleWake()
}

func (c *Controller) scheduleWake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wake == nil {
		return
	}
	if c.settle != nil {
		c.settle.Stop()
	}
	c.settle = time.AfterFunc(c.cfg.SettleDelay, c.restartWake)
}

func (c *Controller) restartWake() {
	c.mu.Lock()
	c.settle = nil
	wake := c.wake
	c.mu.Unlock()

	if wake == nil || !c.WakeAllowed() {
		return
	}
	if err := wake.Start(); err != nil {
		c.logger.Warn("wake listener start failed", "error", err.Error())
	}
}

func (c *Controller) stateChanged(state fsm.State) {
	c.metrics.SetState(string(state), stateNames())
	c.observer.StateChanged(state)
}

func (c *Controller) setLevel(level int) {
	c.mu.Lock()
	changed := c.level != level
	c.level = level
	c.mu.Unlock()
	if !changed {
		return
	}
	c.metrics.SetLevel(level)
	c.observer.LevelChanged(level)
}

// setListeningLevel stores level only while res is the current listening attempt.
func (c *Controller) setListeningLevel(res *resources, level int) bool {
	c.mu.Lock()
	if c.res != res || c.state != fsm.StateListening {
		c.mu.Unlock()
		return false
	}
	changed := c.level != level
	c.level = level
	c.mu.Unlock()
	if changed {
		c.metrics.SetLevel(level)
		c.observer.LevelChanged(level)
	}
	return true
}

func (c *Controller) current(res *resources) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.res == res
}

func (c *Controller) baseContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseCtx
}

func stateNames() []string {
	names := make([]string, len(fsm.States))
	for i, s := range fsm.States {
		names[i] = string(s)
	}
	return names
}
