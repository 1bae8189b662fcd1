// Package dictation owns one streaming connection to a remote voice endpoint,
// forwards PCM frames to it, and accumulates the transcript it returns.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/jotter/internal/audio"
)

// ErrSessionClosed is returned when the session is used after Close.
var ErrSessionClosed = errors.New("dictation session closed")

const defaultQueueSize = 16

// Config describes the remote session to open.
type Config struct {
	Model                string
	TranscriptionEnabled bool
	ResponseModality     string
	SystemPrompt         string
	SampleRate           int
}

// Event is one server message. Transcript carries newly transcribed text.
type Event struct {
	Transcript   string
	TurnComplete bool
}

// Callbacks receive server events. Providers may invoke them from any goroutine,
// but must not invoke them after Conn.Close returns.
type Callbacks struct {
	OnMessage func(Event)
	OnError   func(error)
	OnClose   func()
}

// Conn is an open remote session.
type Conn interface {
	Send(audio.Frame) error
	Close() error
}

// Provider connects to a remote voice endpoint. Connect returns once the
// session is open and must abort when ctx is cancelled.
type Provider interface {
	Connect(ctx context.Context, cfg Config, cb Callbacks) (Conn, error)
}

// Metrics is the subset of instrumentation the session reports to.
type Metrics interface {
	RecordFrameSent()
	RecordFrameDropped()
}

// Options tune a Session.
type Options struct {
	Logger    *slog.Logger
	Metrics   Metrics
	QueueSize int
}

// Session is a single-use dictation session.
type Session struct {
	provider Provider
	cfg      Config
	logger   *slog.Logger
	metrics  Metrics

	transcript TranscriptBuffer

	queue chan audio.Frame
	done  chan struct{}

	mu     sync.Mutex
	conn   Conn
	opened bool
	closed bool
}

func NewSession(provider Provider, cfg Config, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Session{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		metrics:  opts.Metrics,
		queue:    make(chan audio.Frame, size),
		done:     make(chan struct{}),
	}
}

// Open connects the session. Transcript text is appended to the buffer before
// cb.OnMessage runs, so the callback sees the accumulated transcript.
func (s *Session) Open(ctx context.Context, cb Callbacks) error {
	if s.provider == nil {
		return errors.New("dictation provider is not configured")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.opened {
		s.mu.Unlock()
		return errors.New("dictation session already opened")
	}
	s.opened = true
	s.mu.Unlock()

	conn, err := s.provider.Connect(ctx, s.cfg, s.wrap(cb))
	if err != nil {
		return fmt.Errorf("connect dictation session: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.mu.Unlock()

	go s.sendLoop(conn)
	return nil
}

func (s *Session) wrap(cb Callbacks) Callbacks {
	return Callbacks{
		OnMessage: func(ev Event) {
			if s.isClosed() {
				return
			}
			if ev.Transcript != "" {
				s.transcript.Append(ev.Transcript)
			}
			if cb.OnMessage != nil {
				cb.OnMessage(ev)
			}
		},
		OnError: func(err error) {
			if s.isClosed() {
				return
			}
			s.logger.Error("dictation session error", "error", err.Error())
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
		OnClose: func() {
			if s.isClosed() {
				return
			}
			if cb.OnClose != nil {
				cb.OnClose()
			}
		},
	}
}

// Push enqueues a frame without blocking. It reports false when the frame was
// dropped because the queue is full or the session is closed.
func (s *Session) Push(frame audio.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- frame:
		return true
	default:
		if s.metrics != nil {
			s.metrics.RecordFrameDropped()
		}
		return false
	}
}

func (s *Session) sendLoop(conn Conn) {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.queue:
			if err := conn.Send(frame); err != nil {
				if s.isClosed() {
					continue
				}
				s.logger.Debug("dictation frame send failed", "error", err.Error())
				continue
			}
			if s.metrics != nil {
				s.metrics.RecordFrameSent()
			}
		}
	}
}

// Transcript returns the accumulated text.
func (s *Session) Transcript() string {
	return s.transcript.String()
}

func (s *Session) ClearTranscript() {
	s.transcript.Clear()
}

// Close releases the remote session. Only the first call does anything.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	close(s.done)
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close dictation session: %w", err)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
