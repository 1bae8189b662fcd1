// Package metrics exposes Prometheus instrumentation for the voice pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus collectors for jotter.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Capture state
	CaptureState    *prometheus.GaugeVec
	CaptureAttempts prometheus.Counter
	CaptureFailures *prometheus.CounterVec
	ConnectDuration prometheus.Histogram
	Level           prometheus.Gauge

	// Audio frames
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter

	// Wake word listener
	WakeTriggers prometheus.Counter
	WakeRestarts prometheus.Counter
	WakeErrors   *prometheus.CounterVec

	// Commands and notes
	Commands     *prometheus.CounterVec
	NotesParsed  prometheus.Counter
	NoteFailures prometheus.Counter
	ItemsCreated prometheus.Counter
}

// New creates all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CaptureState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jotter_capture_state",
			Help: "Current capture state (1 for the active state label)",
		}, []string{"state"}),
		CaptureAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_capture_attempts_total",
			Help: "Total number of dictation capture attempts",
		}),
		CaptureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jotter_capture_failures_total",
			Help: "Total number of failed or aborted capture attempts",
		}, []string{"reason"}),
		ConnectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jotter_connect_duration_seconds",
			Help:    "Time from start to listening",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		Level: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jotter_input_level",
			Help: "Most recent microphone level in [0, 100]",
		}),

		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_audio_frames_sent_total",
			Help: "Total number of PCM frames forwarded to the dictation session",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_audio_frames_dropped_total",
			Help: "Total number of PCM frames dropped because the send queue was full",
		}),

		WakeTriggers: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_wake_triggers_total",
			Help: "Total number of wake phrases detected",
		}),
		WakeRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_wake_restarts_total",
			Help: "Total number of wake recognizer restarts",
		}),
		WakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jotter_wake_errors_total",
			Help: "Total number of wake recognizer errors",
		}, []string{"code"}),

		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jotter_commands_total",
			Help: "Total number of spoken commands detected",
		}, []string{"command"}),
		NotesParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_notes_parsed_total",
			Help: "Total number of notes parsed into action items",
		}),
		NoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_note_failures_total",
			Help: "Total number of notes that failed to parse or persist",
		}),
		ItemsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "jotter_items_created_total",
			Help: "Total number of action items created",
		}),
	}
}

// Registry exposes the private registry for handlers and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetState marks state as the only active capture state.
func (m *Metrics) SetState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.CaptureState.WithLabelValues(s).Set(0)
	}
	m.CaptureState.WithLabelValues(state).Set(1)
}

func (m *Metrics) RecordAttempt() {
	if m == nil {
		return
	}
	m.CaptureAttempts.Inc()
}

func (m *Metrics) RecordFailure(reason string) {
	if m == nil {
		return
	}
	m.CaptureFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.ConnectDuration.Observe(d.Seconds())
}

func (m *Metrics) SetLevel(level int) {
	if m == nil {
		return
	}
	m.Level.Set(float64(level))
}

func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

func (m *Metrics) RecordWakeTrigger() {
	if m == nil {
		return
	}
	m.WakeTriggers.Inc()
}

func (m *Metrics) RecordWakeRestart() {
	if m == nil {
		return
	}
	m.WakeRestarts.Inc()
}

func (m *Metrics) RecordWakeError(code string) {
	if m == nil {
		return
	}
	m.WakeErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordCommand(command string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command).Inc()
}

// RecordNote counts one parsed note and the items it produced.
func (m *Metrics) RecordNote(items int) {
	if m == nil {
		return
	}
	m.NotesParsed.Inc()
	m.ItemsCreated.Add(float64(items))
}

func (m *Metrics) RecordNoteFailure() {
	if m == nil {
		return
	}
	m.NoteFailures.Inc()
}

// Server serves /metrics on a dedicated listener.
type Server struct {
	logger *slog.Logger
	server *http.Server
}

func NewServer(addr string, m *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves in the background; listen errors are logged.
func (s *Server) Start() {
	s.logger.Info("starting metrics server", slog.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
