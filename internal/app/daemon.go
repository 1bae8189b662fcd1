package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/config"
	"github.com/rbright/jotter/internal/fsm"
	"github.com/rbright/jotter/internal/indicator"
	"github.com/rbright/jotter/internal/ipc"
	"github.com/rbright/jotter/internal/metrics"
	"github.com/rbright/jotter/internal/output"
	"github.com/rbright/jotter/internal/permission"
	"github.com/rbright/jotter/internal/retry"
	"github.com/rbright/jotter/internal/tasks"
	"github.com/rbright/jotter/internal/voice"
	"github.com/rbright/jotter/internal/vosk"
	"github.com/rbright/jotter/internal/wake"
)

// capture is the controller surface the IPC handler drives.
type capture interface {
	State() fsm.State
	Level() int
	Permission() permission.State
	Start(ctx context.Context) error
	Stop()
	Toggle(ctx context.Context) error
}

// itemService is the orchestrator surface the IPC handler drives.
type itemService interface {
	itemEditor
	Submit(ctx context.Context, note string) ([]tasks.ActionItem, error)
	List(ctx context.Context, filter tasks.Filter) ([]tasks.ActionItem, error)
}

// daemon answers IPC requests for a running listener.
type daemon struct {
	ctx     context.Context
	capture capture
	items   itemService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func (r Runner) runDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		server := metrics.NewServer(cfg.Metrics.Listen, m, logger)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	var parser tasks.NoteParser = r.Parser
	if parser == nil {
		parser, err = buildParser(ctx, cfg)
		if err != nil {
			return fmt.Errorf("note parser: %w", err)
		}
	}
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("dictation provider: %w", err)
	}

	db, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	orchestrator := tasks.NewOrchestrator(parser, db, tasks.Options{Logger: logger, Metrics: m})

	mic := audio.PulseMicrophone{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback}
	deps := voice.Deps{
		Mic:        mic,
		Provider:   provider,
		Permission: permission.NewTracker(logger),
		Querier:    audio.NewPermissionProbe(cfg.Audio.Input, cfg.Audio.Fallback, 0),
		Finalizer:  orchestrator,
		LiveInput:  output.NewClipboard(cfg.Clipboard, logger),
		Metrics:    m,
		Logger:     logger,
	}
	if cfg.Indicator.Enable {
		notifier := indicator.NewNotifier(cfg.Indicator, logger)
		defer notifier.Close()
		deps.Observer = notifier
		deps.Reporter = notifier
	}

	ctrl := voice.NewController(voice.Config{
		Dictation:       dictationConfig(cfg),
		ConnectTimeout:  time.Duration(cfg.Dictation.ConnectTimeoutMS) * time.Millisecond,
		MicReleaseDelay: time.Duration(cfg.Dictation.MicReleaseMS) * time.Millisecond,
		SettleDelay:     time.Duration(cfg.Dictation.SettleMS) * time.Millisecond,
	}, deps)

	d := &daemon{ctx: ctx, capture: ctrl, items: orchestrator, metrics: m, logger: logger}

	if cfg.Wake.Enable {
		ctrl.AttachWake(wake.NewListener(wake.Config{
			Factory: vosk.Factory(vosk.Config{
				URL:            cfg.Wake.URL,
				SilenceTimeout: time.Duration(cfg.Wake.SilenceTimeoutMS) * time.Millisecond,
				MaxSession:     time.Duration(cfg.Wake.MaxSessionMS) * time.Millisecond,
				Mic:            mic,
				Logger:         logger,
			}),
			Language: cfg.Wake.Language,
			Policy:   retry.DefaultPolicy(),
			Gate:     ctrl.WakeAllowed,
			OnWake:   func() { go d.run("wake", d.capture.Start) },
			Logger:   logger,
			Metrics:  m,
		}))
	}

	ctrl.Activate(ctx)
	defer ctrl.Shutdown()

	logger.Info("daemon listening",
		"socket", socketPath,
		"provider", cfg.Dictation.Provider,
		"notes", cfg.Notes.Provider,
		"wake", cfg.Wake.Enable,
	)

	if err := ipc.Serve(ctx, listener, d, logger); err != nil {
		return fmt.Errorf("ipc server: %w", err)
	}
	logger.Info("daemon stopped")
	return nil
}

// Handle implements ipc.Handler.
func (d *daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	d.metrics.RecordCommand(req.Command)

	switch req.Command {
	case ipc.CommandStatus:
		return d.status("")
	case ipc.CommandStart:
		if !d.capture.State().CanStart() {
			return ipc.Failure(voice.ErrBusy)
		}
		go d.run("ipc", d.capture.Start)
		return d.status("starting")
	case ipc.CommandStop:
		d.capture.Stop()
		return d.status("stopped")
	case ipc.CommandToggle:
		if d.capture.State().CanStart() {
			go d.run("ipc toggle", d.capture.Toggle)
			return d.status("starting")
		}
		if err := d.capture.Toggle(ctx); err != nil {
			return ipc.Failure(err)
		}
		return d.status("stopped")
	case ipc.CommandNote:
		items, err := d.items.Submit(ctx, req.Text)
		if err != nil {
			return ipc.Failure(err)
		}
		return itemsResponse(savedMessage(len(items)), items)
	case ipc.CommandItems:
		filter, err := parseFilter(req.Text)
		if err != nil {
			return ipc.Failure(err)
		}
		items, err := d.items.List(ctx, filter)
		if err != nil {
			return ipc.Failure(err)
		}
		return itemsResponse("", items)
	case ipc.CommandDone, ipc.CommandEdit, ipc.CommandDelete:
		message, items, err := editItems(ctx, d.items, req.Command, req.Args)
		if err != nil {
			return ipc.Failure(err)
		}
		return itemsResponse(message, items)
	default:
		return ipc.Failure(fmt.Errorf("unsupported command %q", req.Command))
	}
}

// run drives one capture call on the daemon context. Failures are already
// surfaced through the reporter, so they are only logged here.
func (d *daemon) run(source string, call func(context.Context) error) {
	err := call(d.ctx)
	switch {
	case err == nil:
		d.logger.Debug("capture listening", "source", source)
	case errors.Is(err, voice.ErrStopped), errors.Is(err, voice.ErrBusy):
		d.logger.Debug("capture start abandoned", "source", source, "reason", err.Error())
	default:
		d.logger.Warn("capture start failed", "source", source, "error", err.Error())
	}
}

func (d *daemon) status(message string) ipc.Response {
	return ipc.Response{
		OK:         true,
		State:      string(d.capture.State()),
		Permission: string(d.capture.Permission()),
		Level:      d.capture.Level(),
		Message:    message,
	}
}

func itemsResponse(message string, items []tasks.ActionItem) ipc.Response {
	if items == nil {
		items = []tasks.ActionItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ipc.Failure(fmt.Errorf("encode items: %w", err))
	}
	return ipc.Response{OK: true, Message: message, Data: data}
}
