// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"github.com/ptcrun/ptc/internal/engine"
	"github.com/ptcrun/ptc/internal/progress"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultStartupTimeout  = 5 * time.Second
	defaultMaxScriptBytes  = 1 << 20
)

var (
	// ErrNoEngineFactory is returned by Start when Config.NewEngine is nil.
	ErrNoEngineFactory = errors.New("no engine factory configured")
	// ErrHostKeyRequired is returned by Start when Config.HostKeyPath is empty.
	ErrHostKeyRequired = errors.New("host key path is required")
)

type (
	// EngineFactory builds the engine serving one session. Progress events
	// of the session's run must be mirrored to sink.
	EngineFactory func(sink progress.Sink) (*engine.Engine, error)

	// Config holds immutable configuration for the SSH server.
	Config struct {
		// Address is host:port to listen on; port 0 picks a free port.
		Address string
		// HostKeyPath is the server's private key. Wish generates it when missing.
		HostKeyPath string
		// Token is the password every client must present. A random token is
		// generated when empty.
		Token string
		// MaxScriptBytes caps the script a session may send.
		MaxScriptBytes int64
		// NewEngine builds the per-session engine.
		NewEngine EngineFactory
		// Logger receives lifecycle and session logs; discarded when nil.
		Logger *log.Logger
		// ShutdownTimeout bounds graceful shutdown (default: 10s).
		ShutdownTimeout time.Duration
		// StartupTimeout bounds Start (default: 5s).
		StartupTimeout time.Duration
	}

	// Server runs scripts submitted over SSH.
	// A Server is single-use: once stopped or failed, create a new instance.
	Server struct {
		cfg    Config
		logger *log.Logger

		state atomic.Int32

		mu       sync.Mutex
		srv      *ssh.Server
		listener net.Listener
		addr     string
		lastErr  error

		// ctx is cancelled on Stop so that running scripts are interrupted.
		ctx       context.Context
		cancel    context.CancelFunc
		wg        sync.WaitGroup
		startedCh chan struct{}
		errCh     chan error
	}
)

// New creates a server. It is not started; call Start to accept sessions.
func New(cfg Config) (*Server, error) {
	if cfg.Token == "" {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = hex.EncodeToString(b)
	}
	if cfg.MaxScriptBytes <= 0 {
		cfg.MaxScriptBytes = defaultMaxScriptBytes
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger.WithPrefix(logger.GetPrefix() + "/serve"),
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.state.Store(int32(StateCreated))
	return s, nil
}

// Token returns the password clients must present.
func (s *Server) Token() string {
	return s.cfg.Token
}

// Start binds the listener and blocks until the server accepts sessions,
// fails to start, ctx is cancelled or the startup timeout elapses.
// After Start returns nil, use Err to monitor runtime errors.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		s.fail(fmt.Errorf("context cancelled before start: %w", ctx.Err()))
		return s.LastError()
	default:
	}
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", s.State())
	}
	if s.cfg.NewEngine == nil {
		s.fail(ErrNoEngineFactory)
		return ErrNoEngineFactory
	}
	if s.cfg.HostKeyPath == "" {
		s.fail(ErrHostKeyRequired)
		return ErrHostKeyRequired
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer startupCancel()

	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", s.cfg.Address)
	if err != nil {
		s.fail(fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err))
		return s.LastError()
	}

	srv, err := wish.NewServer(
		wish.WithAddress(listener.Addr().String()),
		wish.WithHostKeyPath(s.cfg.HostKeyPath),
		wish.WithPasswordAuth(s.passwordHandler),
		wish.WithPublicKeyAuth(s.publicKeyHandler),
		wish.WithMiddleware(s.sessionMiddleware()),
	)
	if err != nil {
		_ = listener.Close()
		s.fail(fmt.Errorf("failed to create SSH server: %w", err))
		return s.LastError()
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = listener
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.serve(srv, listener)

	select {
	case <-s.startedCh:
		s.logger.Info("SSH server started", "address", s.addr)
		return nil
	case err := <-s.errCh:
		s.fail(err)
		return err
	case <-startupCtx.Done():
		_ = srv.Close()
		s.fail(fmt.Errorf("startup timeout: %w", startupCtx.Err()))
		return s.LastError()
	}
}

// Stop gracefully stops the server, waiting for open sessions up to the
// shutdown timeout. Safe to call multiple times.
func (s *Server) Stop() error {
	for {
		current := s.State()
		switch current {
		case StateStopped, StateFailed, StateStopping:
			s.wg.Wait()
			return nil
		case StateCreated:
			if s.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				s.cancel()
				return nil
			}
		case StateStarting, StateRunning:
			if s.state.CompareAndSwap(int32(current), int32(StateStopping)) {
				return s.doStop()
			}
		}
	}
}

func (s *Server) doStop() error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer shutdownCancel()

	s.cancel()

	s.mu.Lock()
	srv, listener := s.srv, s.listener
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil && !isClosedConnError(err) {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}
	if listener != nil {
		_ = listener.Close()
	}

	s.wg.Wait()
	s.state.Store(int32(StateStopped))
	close(s.errCh)
	s.logger.Info("SSH server stopped")
	return shutdownErr
}

// serve runs the accept loop until the server is closed.
func (s *Server) serve(srv *ssh.Server, listener net.Listener) {
	defer s.wg.Done()

	if s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(s.startedCh)
	}

	err := srv.Serve(listener)
	if err == nil || errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return
	}
	select {
	case s.errCh <- fmt.Errorf("serve error: %w", err):
	default:
		s.logger.Error("SSH server error (channel full)", "error", err)
	}
}

func (s *Server) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	s.state.Store(int32(StateFailed))
	s.cancel()
	select {
	case s.errCh <- err:
	default:
	}
}

// State returns the current server state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// IsRunning reports whether the server accepts sessions.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Err returns a channel that receives fatal server errors. It is closed
// when the server stops.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// LastError returns the error that caused the Failed state, or nil.
func (s *Server) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Address returns the bound host:port, or "" before a successful Start.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Port returns the bound port, or 0 before a successful Start.
func (s *Server) Port() int {
	_, portStr, err := net.SplitHostPort(s.Address())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// Wait blocks until the server stops. It returns the failure, if any.
func (s *Server) Wait() error {
	s.wg.Wait()
	if s.State() == StateFailed {
		return s.LastError()
	}
	return nil
}

// passwordHandler accepts clients presenting the server token.
func (s *Server) passwordHandler(ctx ssh.Context, password string) bool {
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Token)) != 1 {
		s.logger.Warn("invalid token authentication attempt", "user", ctx.User(), "remote", ctx.RemoteAddr().String())
		return false
	}
	return true
}

// publicKeyHandler rejects all public keys; only the token is accepted.
func (s *Server) publicKeyHandler(ssh.Context, ssh.PublicKey) bool {
	return false
}

// isClosedConnError checks if the error is a "use of closed network connection" error.
func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed)
}
