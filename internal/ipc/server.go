package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const requestReadTimeout = 5 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts unix-socket clients until context cancellation or listener close.
// Each connection carries exactly one request line and one response line.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler, logger)
		}(conn)
	}
}

func serveConn(ctx context.Context, c net.Conn, handler Handler, logger *slog.Logger) {
	_ = c.SetReadDeadline(time.Now().Add(requestReadTimeout))

	reply := func(resp Response) {
		if err := json.NewEncoder(c).Encode(resp); err != nil {
			logger.Debug("ipc reply failed", "error", err.Error())
		}
	}

	line, err := bufio.NewReader(c).ReadBytes('\n')
	if err != nil {
		reply(Failure(fmt.Errorf("read request: %w", err)))
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		reply(Failure(fmt.Errorf("decode request: %w", err)))
		return
	}

	logger.Debug("ipc request", "command", req.Command)
	_ = c.SetReadDeadline(time.Time{})
	reply(handler.Handle(ctx, req))
}
