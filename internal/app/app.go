// Package app dispatches parsed CLI commands to the daemon or to local handlers.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/jotter/internal/audio"
	"github.com/rbright/jotter/internal/cli"
	"github.com/rbright/jotter/internal/config"
	"github.com/rbright/jotter/internal/doctor"
	"github.com/rbright/jotter/internal/ipc"
	"github.com/rbright/jotter/internal/logging"
	"github.com/rbright/jotter/internal/tasks"
	"github.com/rbright/jotter/internal/version"
)

const (
	controlTimeout = 2 * time.Second
	statusTimeout  = 220 * time.Millisecond
	noteTimeout    = 45 * time.Second
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Parser overrides the configured note parser.
	Parser tasks.NoteParser
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("jotter"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("jotter"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStart:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStart})
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStop})
	case cli.CommandToggle:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandToggle})
	case cli.CommandNote:
		return r.commandNote(ctx, cfgLoaded.Config, parsed.Text, logger)
	case cli.CommandItems:
		return r.commandItems(ctx, cfgLoaded.Config, parsed.Text, logger)
	case cli.CommandDone, cli.CommandEdit, cli.CommandDelete:
		return r.commandEdit(ctx, cfgLoaded.Config, string(parsed.Command), parsed.Args, logger)
	case cli.CommandListen:
		if err := r.runDaemon(ctx, cfgLoaded.Config, logger); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			logger.Error("daemon failed", "error", err.Error())
			return 1
		}
		return 0
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, statusTimeout)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		line := resp.State
		if resp.Permission != "" {
			line = fmt.Sprintf("%s (microphone %s)", line, resp.Permission)
		}
		fmt.Fprintln(r.Stdout, line)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req, controlTimeout)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no running jotter daemon (start one with `jotter listen`)\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandNote submits through the daemon when one owns the store, else locally.
func (r Runner) commandNote(ctx context.Context, cfg config.Config, text string, logger *slog.Logger) int {
	if socketPath, err := ipc.RuntimeSocketPath(); err == nil {
		resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandNote, Text: text}, noteTimeout)
		if handled {
			return r.printItemsResponse(resp, err)
		}
	}

	local, err := r.openLocal(ctx, cfg, logger, true)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer local.Close()

	items, err := local.orchestrator.Submit(ctx, text)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, savedMessage(len(items)))
	writeItems(r.Stdout, items)
	return 0
}

func (r Runner) commandItems(ctx context.Context, cfg config.Config, rawStatus string, logger *slog.Logger) int {
	filter, err := parseFilter(rawStatus)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	if socketPath, err := ipc.RuntimeSocketPath(); err == nil {
		resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandItems, Text: string(filter.Status)}, controlTimeout)
		if handled {
			return r.printItemsResponse(resp, err)
		}
	}

	local, err := r.openLocal(ctx, cfg, logger, false)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer local.Close()

	items, err := local.orchestrator.List(ctx, filter)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	writeItems(r.Stdout, items)
	return 0
}

// commandEdit runs done, edit, or delete through the daemon when one owns the
// store, else against a locally opened store.
func (r Runner) commandEdit(ctx context.Context, cfg config.Config, command string, args []string, logger *slog.Logger) int {
	if socketPath, err := ipc.RuntimeSocketPath(); err == nil {
		resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: command, Args: args}, controlTimeout)
		if handled {
			return r.printItemsResponse(resp, err)
		}
	}

	local, err := r.openLocal(ctx, cfg, logger, false)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer local.Close()

	message, items, err := editItems(ctx, local.orchestrator, command, args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, message)
	writeItems(r.Stdout, items)
	return 0
}

func (r Runner) printItemsResponse(resp ipc.Response, err error) int {
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	var items []tasks.ActionItem
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &items); err != nil {
			fmt.Fprintf(r.Stderr, "error: decode items: %v\n", err)
			return 1
		}
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	writeItems(r.Stdout, items)
	return 0
}

func parseFilter(raw string) (tasks.Filter, error) {
	if strings.TrimSpace(raw) == "" {
		return tasks.Filter{}, nil
	}
	status, ok := tasks.ParseStatus(raw)
	if !ok {
		return tasks.Filter{}, fmt.Errorf("unknown status %q (want pending, in_progress, or done)", raw)
	}
	return tasks.Filter{Status: status}, nil
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
