package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	requestReadTimeout   = 5 * time.Second
	responseWriteTimeout = 2 * time.Second
)

var errMissingCommand = errors.New("request has no command")

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
// Each connection carries one request line and one response line.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
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

			resp := serveConn(ctx, c, handler)
			_ = c.SetWriteDeadline(time.Now().Add(responseWriteTimeout))
			_ = json.NewEncoder(c).Encode(resp)
		}(conn)
	}
}

func serveConn(ctx context.Context, c net.Conn, handler Handler) (resp Response) {
	_ = c.SetReadDeadline(time.Now().Add(requestReadTimeout))
	line, err := bufio.NewReader(c).ReadBytes('\n')
	if err != nil {
		return Response{OK: false, Error: fmt.Sprintf("read request: %v", err)}
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)}
	}
	if strings.TrimSpace(req.Command) == "" {
		return Response{OK: false, Error: errMissingCommand.Error()}
	}

	// A failing command must not take the session owner down with it.
	defer func() {
		if r := recover(); r != nil {
			resp = Response{OK: false, Error: fmt.Sprintf("command %q panicked: %v", req.Command, r)}
		}
	}()
	return handler.Handle(ctx, req)
}
