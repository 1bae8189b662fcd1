// Package wake runs a continuous local recognizer and signals once when the
// user speaks a wake phrase.
package wake

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rbright/jotter/internal/retry"
)

// ErrorCode is the recognizer error vocabulary.
type ErrorCode string

const (
	ErrNoSpeech     ErrorCode = "no-speech"
	ErrAborted      ErrorCode = "aborted"
	ErrAudioCapture ErrorCode = "audio-capture"
	ErrNetwork      ErrorCode = "network"
	ErrNotAllowed   ErrorCode = "not-allowed"
)

// ErrorClass groups codes by how the restart loop treats them.
type ErrorClass int

const (
	// ClassTransient errors are absorbed silently.
	ClassTransient ErrorClass = iota
	// ClassBackoff errors grow the restart delay.
	ClassBackoff
	// ClassOther errors are logged and otherwise ignored.
	ClassOther
)

func (c ErrorCode) Class() ErrorClass {
	switch c {
	case ErrNoSpeech, ErrAborted:
		return ClassTransient
	case ErrAudioCapture, ErrNetwork:
		return ClassBackoff
	default:
		return ClassOther
	}
}

// Options configure one recognizer instance.
type Options struct {
	Continuous bool
	Interim    bool
	Language   string
}

// Result is one recognition hypothesis slot with its alternatives.
type Result struct {
	Alternatives []string
	Final        bool
}

// ResultEvent carries results changed since ResultIndex.
type ResultEvent struct {
	ResultIndex int
	Results     []Result
}

// Handlers receive recognizer events. Implementations may call them from any goroutine.
type Handlers struct {
	OnResult func(ResultEvent)
	OnError  func(ErrorCode)
	OnEnd    func()
}

// Recognizer is one running local recognition engine.
// Abort must be safe to call before, during, and after Start.
type Recognizer interface {
	Start() error
	Abort()
}

// RecognizerFactory builds a recognizer bound to handlers.
type RecognizerFactory func(Options, Handlers) (Recognizer, error)

// Metrics is the subset of instrumentation the listener reports to.
type Metrics interface {
	RecordWakeTrigger()
	RecordWakeRestart()
	RecordWakeError(code string)
}

var wakePattern = regexp.MustCompile(`(?i)\b(hey|start)\b`)

// Matches reports whether text contains a wake phrase.
func Matches(text string) bool {
	return wakePattern.MatchString(text)
}

// Config wires a Listener.
type Config struct {
	Factory  RecognizerFactory
	Language string
	Policy   retry.Policy
	// Gate must hold for Start to do anything (controller idle, mic granted).
	Gate func() bool
	// OnWake runs once per trigger, after the recognizer is aborted.
	OnWake  func()
	Logger  *slog.Logger
	Metrics Metrics
}

type instance struct {
	rec   Recognizer
	fired bool
}

// Listener owns at most one registered recognizer at a time.
type Listener struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	current *instance
	timer   *time.Timer
	retries int
}

func NewListener(cfg Config) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Gate == nil {
		cfg.Gate = func() bool { return true }
	}
	return &Listener{cfg: cfg, logger: logger}
}

// Start registers and starts a recognizer. It is a no-op when the gate is
// closed or an instance is already registered. A manual start resets retries.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.current != nil || !l.cfg.Gate() {
		l.mu.Unlock()
		return nil
	}
	l.retries = 0
	inst, err := l.registerLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.launch(inst)
}

// Stop clears the registration first, then aborts the recognizer, so any
// late end event or restart timer sees a stale instance and does nothing.
func (l *Listener) Stop() {
	l.mu.Lock()
	inst := l.current
	l.current = nil
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	if inst != nil && inst.rec != nil {
		inst.rec.Abort()
	}
}

// Active reports whether a recognizer is registered.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil
}

// Retries reports the consecutive backoff-class error count.
func (l *Listener) Retries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries
}

func (l *Listener) registerLocked() (*instance, error) {
	if l.cfg.Factory == nil {
		return nil, errors.New("wake recognizer factory is not configured")
	}
	inst := &instance{}
	rec, err := l.cfg.Factory(Options{Continuous: true, Interim: true, Language: l.cfg.Language}, Handlers{
		OnResult: func(ev ResultEvent) { l.onResult(inst, ev) },
		OnError:  func(code ErrorCode) { l.onError(inst, code) },
		OnEnd:    func() { l.onEnd(inst) },
	})
	if err != nil {
		return nil, err
	}
	inst.rec = rec
	l.current = inst
	return inst, nil
}

func (l *Listener) launch(inst *instance) error {
	if err := inst.rec.Start(); err != nil {
		l.mu.Lock()
		if l.current == inst {
			l.current = nil
		}
		l.mu.Unlock()
		l.logger.Warn("wake recognizer failed to start", "error", err.Error())
		return err
	}

	l.mu.Lock()
	stale := l.current != inst
	l.mu.Unlock()
	if stale {
		inst.rec.Abort()
	}
	return nil
}

func (l *Listener) onResult(inst *instance, ev ResultEvent) {
	l.mu.Lock()
	if l.current != inst || inst.fired {
		l.mu.Unlock()
		return
	}
	l.retries = 0

	text := transcriptFrom(ev)
	if !Matches(text) {
		l.mu.Unlock()
		return
	}
	inst.fired = true
	l.current = nil
	l.mu.Unlock()

	l.logger.Info("wake phrase detected", "text", text)
	inst.rec.Abort()
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordWakeTrigger()
	}
	if l.cfg.OnWake != nil {
		l.cfg.OnWake()
	}
}

func (l *Listener) onError(inst *instance, code ErrorCode) {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordWakeError(string(code))
	}
	switch code.Class() {
	case ClassTransient:
		return
	case ClassBackoff:
		l.mu.Lock()
		if l.current == inst {
			l.retries++
		}
		retries := l.retries
		l.mu.Unlock()
		l.logger.Debug("wake recognizer error", "code", string(code), "retries", retries)
	default:
		l.logger.Warn("wake recognizer error", "code", string(code))
	}
}

func (l *Listener) onEnd(inst *instance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != inst {
		return
	}
	l.scheduleLocked(inst)
}

func (l *Listener) scheduleLocked(inst *instance) {
	delay := l.cfg.Policy.Delay(l.retries)
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(delay, func() { l.restart(inst) })
}

// restart replaces prev with a fresh recognizer if prev is still registered.
// A failed replacement keeps prev registered and retries on the backoff path.
func (l *Listener) restart(prev *instance) {
	l.mu.Lock()
	if l.current != prev {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	if !l.cfg.Gate() {
		l.current = nil
		l.mu.Unlock()
		return
	}
	inst, err := l.registerLocked()
	l.mu.Unlock()
	if err != nil {
		l.restartFailed(prev, err)
		return
	}

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordWakeRestart()
	}
	if err := inst.rec.Start(); err != nil {
		l.restartFailed(inst, err)
		return
	}

	l.mu.Lock()
	stale := l.current != inst
	l.mu.Unlock()
	if stale {
		inst.rec.Abort()
	}
}

func (l *Listener) restartFailed(inst *instance, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != inst {
		return
	}
	l.retries++
	l.logger.Warn("wake recognizer restart failed", "error", err.Error(), "retries", l.retries)
	l.scheduleLocked(inst)
}

func transcriptFrom(ev ResultEvent) string {
	start := max(ev.ResultIndex, 0)
	var b strings.Builder
	for i := start; i < len(ev.Results); i++ {
		for _, alt := range ev.Results[i].Alternatives {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(alt)
		}
	}
	return strings.ToLower(b.String())
}
