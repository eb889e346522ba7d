package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning means another process owns the conversation socket.
var ErrAlreadyRunning = errors.New("conversa session already running")

const socketName = "conversa.sock"

// RuntimeSocketPath returns $XDG_RUNTIME_DIR/conversa.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, socketName), nil
}

// AcquireOptions tunes how hard Acquire fights for a busy socket path.
type AcquireOptions struct {
	// ProbeTimeout bounds the status roundtrip used to tell a live owner
	// from a stale socket file.
	ProbeTimeout time.Duration
	// Retries is the number of extra listen attempts after unlinking a
	// stale socket. Another starter may win the path in between.
	Retries int
	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	Backoff time.Duration
}

func (o AcquireOptions) withDefaults() AcquireOptions {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 200 * time.Millisecond
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 25 * time.Millisecond
	}
	return o
}

// Acquire listens on path and makes the caller the session owner.
// A stale socket left by a dead owner is unlinked; a responsive owner
// yields ErrAlreadyRunning. An owner that accepts but never answers is
// left alone and reported as an error.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * opts.Backoff):
			}
		}

		listener, err := listenOwner(path)
		if err == nil {
			return listener, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		lastErr = err

		alive, probeErr := Probe(ctx, path, opts.ProbeTimeout)
		switch {
		case alive:
			return nil, ErrAlreadyRunning
		case probeErr != nil:
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
	}

	return nil, fmt.Errorf("acquire socket %s after %d retries: %w", path, opts.Retries, lastErr)
}

func listenOwner(path string) (net.Listener, error) {
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket %s: %w", path, err)
	}
	return listener, nil
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
