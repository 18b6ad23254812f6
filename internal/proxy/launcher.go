// Package proxy runs the local loopback proxy that the rest of the app
// expects to be listening before it talks to the paired host.
//
// Launching is fire-and-forget: [Launcher.Start] returns a channel that
// receives exactly one [Status], and a failed launch never stops the
// connection lifecycle.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	perrors "github.com/Iron-Ham/pairlink/internal/errors"
	"github.com/Iron-Ham/pairlink/internal/logging"
)

// DefaultBindAddress is the loopback address the proxy listens on.
const DefaultBindAddress = "127.0.0.1:51820"

// Status reports the result of a launch.
type Status struct {
	Started bool
	Addr    string // actual listening address when Started
	Err     error
}

// Config configures a Launcher.
type Config struct {
	// Upstream is where accepted connections are relayed. Empty means
	// connections are accepted and closed.
	Upstream string
	// DialTimeout bounds the upstream dial for each connection.
	DialTimeout time.Duration
	Logger      *logging.Logger
}

// Launcher owns the proxy listener.
type Launcher struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	launched bool
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	handlers conc.WaitGroup
}

// NewLauncher creates a Launcher. Nothing listens until Start.
func NewLauncher(cfg Config) *Launcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Launcher{
		cfg:    cfg,
		logger: logger.WithComponent("proxy"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds addr on a background goroutine and reports the outcome on
// the returned channel, which is buffered and receives exactly one Status.
// Only the first call launches; later calls report an error. The listener
// is closed when ctx is done or Close is called.
func (l *Launcher) Start(ctx context.Context, addr string) <-chan Status {
	status := make(chan Status, 1)

	l.mu.Lock()
	if l.launched {
		l.mu.Unlock()
		status <- Status{Addr: addr, Err: perrors.NewLaunchError(addr, fmt.Errorf("proxy already launched"))}
		return status
	}
	l.launched = true
	l.mu.Unlock()

	go func() {
		ln, err := l.listen(ctx, addr)
		if err != nil {
			l.logger.Error("proxy failed to start", "addr", addr, "error", err.Error())
			status <- Status{Addr: addr, Err: err}
			return
		}

		l.logger.Info("proxy started", "addr", ln.Addr().String(), "upstream", l.cfg.Upstream)
		status <- Status{Started: true, Addr: ln.Addr().String()}

		stop := context.AfterFunc(ctx, func() { _ = l.Close() })
		defer stop()
		l.serve(ln)
	}()

	return status
}

func (l *Launcher) listen(ctx context.Context, addr string) (net.Listener, error) {
	if err := CheckLoopback(addr); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, perrors.NewLaunchError(addr, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = ln.Close()
		return nil, perrors.NewLaunchError(addr, net.ErrClosed)
	}
	l.listener = ln
	return ln, nil
}

// CheckLoopback returns an error wrapping ErrProxyNotLoopback unless addr
// is a host:port on a loopback interface.
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return perrors.NewLaunchError(addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return perrors.NewLaunchError(addr, perrors.ErrProxyNotLoopback)
	}
	return nil
}

func (l *Launcher) serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if !closed {
				l.logger.Warn("proxy accept failed", "error", err.Error())
			}
			return
		}

		// Register under mu so Close never waits while a handler is being added.
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = conn.Close()
			return
		}
		l.conns[conn] = struct{}{}
		l.handlers.Go(func() {
			defer l.untrack(conn)
			l.handle(conn)
		})
		l.mu.Unlock()
	}
}

func (l *Launcher) handle(conn net.Conn) {
	if l.cfg.Upstream == "" {
		_ = conn.Close()
		return
	}
	l.relay(conn)
}

func (l *Launcher) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Launcher) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	_ = conn.Close()
}

// Addr returns the listening address, or "" if the proxy is not listening.
func (l *Launcher) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil || l.closed {
		return ""
	}
	return l.listener.Addr().String()
}

// Close stops the listener, closes active connections and waits for their
// handlers. It is safe to call more than once.
func (l *Launcher) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ln := l.listener
	conns := make([]net.Conn, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	if r := l.handlers.WaitAndRecover(); r != nil {
		l.logger.Error("proxy handler panicked", "panic", r.String())
	}
	if ln != nil {
		l.logger.Info("proxy stopped", "addr", ln.Addr().String())
	}
	return err
}
