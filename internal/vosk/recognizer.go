// Package vosk implements the wake recognizer against a Vosk websocket server
// fed from a local microphone stream.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/wake"
)

const (
	defaultURL            = "ws://127.0.0.1:2700"
	defaultSilenceTimeout = 8 * time.Second
	defaultMaxSession     = 60 * time.Second
)

// Config controls the recognizer transport and session bounds.
type Config struct {
	URL        string
	SampleRate int
	// SilenceTimeout ends a session with no-speech when nothing is heard.
	SilenceTimeout time.Duration
	// MaxSession ends a session naturally so the listener restarts it.
	MaxSession time.Duration
	Mic        audio.Microphone
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URL) == "" {
		c.URL = defaultURL
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = defaultSilenceTimeout
	}
	if c.MaxSession <= 0 {
		c.MaxSession = defaultMaxSession
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Factory returns a wake.RecognizerFactory bound to cfg.
func Factory(cfg Config) wake.RecognizerFactory {
	cfg = cfg.withDefaults()
	return func(opts wake.Options, h wake.Handlers) (wake.Recognizer, error) {
		if cfg.Mic == nil {
			return nil, errors.New("vosk recognizer requires a microphone")
		}
		return newRecognizer(cfg, opts, h), nil
	}
}

// Recognizer is one Vosk session. It ends exactly once, after which OnEnd fires.
type Recognizer struct {
	cfg  Config
	opts wake.Options
	h    wake.Handlers

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	aborted bool

	endOnce sync.Once
}

func newRecognizer(cfg Config, opts wake.Options, h wake.Handlers) *Recognizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recognizer{cfg: cfg, opts: opts, h: h, ctx: ctx, cancel: cancel}
}

// Start launches the session in the background. Transport failures surface
// through OnError followed by OnEnd.
func (r *Recognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("vosk recognizer already started")
	}
	if r.aborted {
		return errors.New("vosk recognizer aborted")
	}
	r.started = true
	go r.run()
	return nil
}

// Abort cancels the session immediately.
func (r *Recognizer) Abort() {
	r.mu.Lock()
	r.aborted = true
	started := r.started
	r.mu.Unlock()

	r.cancel()
	if !started {
		r.finish(wake.ErrAborted)
	}
}

func (r *Recognizer) run() {
	code := r.session()
	r.finish(code)
}

func (r *Recognizer) finish(code wake.ErrorCode) {
	r.endOnce.Do(func() {
		r.mu.Lock()
		if r.aborted {
			code = wake.ErrAborted
		}
		r.mu.Unlock()

		if code != "" && r.h.OnError != nil {
			r.h.OnError(code)
		}
		if r.h.OnEnd != nil {
			r.h.OnEnd()
		}
	})
}

// session runs until silence, max duration, abort, or failure. An empty code
// is a natural end.
func (r *Recognizer) session() wake.ErrorCode {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.MaxSession)
	defer cancel()

	source, err := r.cfg.Mic.Open(ctx)
	if err != nil {
		r.cfg.Logger.Debug("wake microphone unavailable", "error", err.Error())
		if errors.Is(err, audio.ErrPermissionDenied) {
			return wake.ErrNotAllowed
		}
		return wake.ErrAudioCapture
	}
	defer func() { _ = source.Close() }()

	conn, _, err := r.cfg.Dialer.DialContext(ctx, r.cfg.URL, nil)
	if err != nil {
		r.cfg.Logger.Debug("vosk server unreachable", "url", r.cfg.URL, "error", err.Error())
		return wake.ErrNetwork
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(configMessage{Config: configBody{SampleRate: r.cfg.SampleRate}}); err != nil {
		return wake.ErrNetwork
	}

	chunks := make(chan []byte, 32)
	graph := audio.NewContext(source)
	graph.Connect(func(frame audio.Frame) {
		select {
		case chunks <- frame.Bytes():
		default:
		}
	})
	graph.Resume()
	defer func() {
		_ = graph.Disconnect()
		_ = graph.Close()
	}()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- writeLoop(ctx, conn, chunks)
	}()

	heard := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		readErr <- r.readLoop(conn, heard)
	}()

	silence := time.NewTimer(r.cfg.SilenceTimeout)
	defer silence.Stop()

	for {
		select {
		case <-heard:
			if !silence.Stop() {
				select {
				case <-silence.C:
				default:
				}
			}
			silence.Reset(r.cfg.SilenceTimeout)
		case <-silence.C:
			return wake.ErrNoSpeech
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ""
			}
			return wake.ErrAborted
		case err := <-writeErr:
			if err != nil {
				r.cfg.Logger.Debug("vosk write failed", "error", err.Error())
				return wake.ErrNetwork
			}
			return ""
		case err := <-readErr:
			if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ""
			}
			if ctx.Err() != nil {
				return wake.ErrAborted
			}
			r.cfg.Logger.Debug("vosk read failed", "error", err.Error())
			return wake.ErrNetwork
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, chunks <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`))
			return nil
		case chunk := <-chunks:
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
		}
	}
}

func (r *Recognizer) readLoop(conn *websocket.Conn, heard chan<- struct{}) error {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg resultMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		ev, ok := msg.event(r.opts.Interim)
		if !ok {
			continue
		}
		select {
		case heard <- struct{}{}:
		default:
		}
		if r.h.OnResult != nil {
			r.h.OnResult(ev)
		}
	}
}

type configMessage struct {
	Config configBody `json:"config"`
}

type configBody struct {
	SampleRate int `json:"sample_rate"`
}

type resultMessage struct {
	Partial      string        `json:"partial"`
	Text         string        `json:"text"`
	Alternatives []alternative `json:"alternatives"`
}

type alternative struct {
	Text string `json:"text"`
}

// event maps one server message to a single-slot result event.
func (m resultMessage) event(interim bool) (wake.ResultEvent, bool) {
	var (
		alts  []string
		final bool
	)
	switch {
	case strings.TrimSpace(m.Text) != "":
		alts, final = []string{strings.TrimSpace(m.Text)}, true
	case len(m.Alternatives) > 0:
		for _, alt := range m.Alternatives {
			if text := strings.TrimSpace(alt.Text); text != "" {
				alts = append(alts, text)
			}
		}
		final = true
	case interim && strings.TrimSpace(m.Partial) != "":
		alts = []string{strings.TrimSpace(m.Partial)}
	}
	if len(alts) == 0 {
		return wake.ResultEvent{}, false
	}
	return wake.ResultEvent{Results: []wake.Result{{Alternatives: alts, Final: final}}}, true
}
