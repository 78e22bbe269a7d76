package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/config"
)

// Server owns the listening socket and the HTTP server bound to it
type Server struct {
	config      *config.Config
	handler     http.Handler
	logger      *slog.Logger
	out         io.Writer
	listener    net.Listener
	httpServer  *http.Server
	timeouts    config.Timeouts
	systemdMode bool
	pidFile     string
	onReady     []func(url string)
	startTime   time.Time
	stopOnce    sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithOutput sets where the startup line is printed (default stdout)
func WithOutput(w io.Writer) Option {
	return func(s *Server) {
		s.out = w
	}
}

// WithReadyHook registers fn to run with the server URL once it is serving
func WithReadyHook(fn func(url string)) Option {
	return func(s *Server) {
		s.onReady = append(s.onReady, fn)
	}
}

// New creates a server instance. cfg must already be validated.
func New(cfg *config.Config, handler http.Handler, logger *slog.Logger, opts ...Option) (*Server, error) {
	timeouts, err := cfg.Timeouts()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		handler:     handler,
		logger:      logger,
		out:         os.Stdout,
		timeouts:    timeouts,
		systemdMode: cfg.Systemd,
		pidFile:     cfg.PIDFile,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
		ReadTimeout:       timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

// IsAddressInUse reports whether err came from binding an address that is taken
func IsAddressInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// Listen binds the listening socket. Run calls it when it has not been called.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}

	unixSocket := s.config.Network == "unix" && !s.socketActivated()
	if unixSocket {
		if err := removeStaleSocket(s.config.Address); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(s.config.Address), 0700); err != nil {
			return fmt.Errorf("failed to create socket directory: %w", err)
		}

		// Owner-only socket permissions
		oldUmask := syscall.Umask(0077)
		defer syscall.Umask(oldUmask)
	}

	listener, err := s.getListenerWithActivation()
	if err != nil {
		return fmt.Errorf("failed to start listener on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	return nil
}

// removeStaleSocket removes a socket left by a previous run. Any other kind
// of file at path is an error and is left in place.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat socket path: %w", err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("address %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns a browsable URL for the bound address
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	if addr.Network() == "unix" {
		return "http+unix://" + addr.String()
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String() + "/"
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// Run binds the socket if needed and serves until ctx is cancelled or the
// process receives SIGINT or SIGTERM
func (s *Server) Run(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := s.Listen(); err != nil {
		return err
	}

	if err := s.writePIDFile(); err != nil {
		_ = s.listener.Close()
		return err
	}
	defer s.removePIDFile()

	s.startTime = time.Now()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	url := s.URL()
	fmt.Fprintf(s.out, "Server running on %s\n", url)
	s.logger.Info("Server started",
		"network", s.listener.Addr().Network(),
		"address", s.listener.Addr().String(),
	)

	s.notifySystemd("READY=1")
	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go s.watchdogLoop(watchdogCtx)

	for _, fn := range s.onReady {
		fn(url)
	}

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return s.shutdown()
		}
		s.logger.Error("Server failed", "error", err)
		return errors.Join(fmt.Errorf("server failed: %w", err), s.shutdown())
	case sig := <-sigChan:
		s.logger.Info("Received signal", "signal", sig)
	case <-ctx.Done():
		s.logger.Info("Context cancelled")
	}

	return s.shutdown()
}

// shutdown drains in-flight requests and releases the listener
func (s *Server) shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("Shutting down server")
		s.notifySystemd("STOPPING=1")

		ctx := context.Background()
		if s.timeouts.Shutdown > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeouts.Shutdown)
			defer cancel()
		}

		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error("Failed to shut down cleanly", "error", shutdownErr)
			err = fmt.Errorf("failed to shut down: %w", shutdownErr)
		}

		if s.config.Network == "unix" && !s.socketActivated() {
			if rmErr := removeStaleSocket(s.config.Address); rmErr != nil {
				s.logger.Error("Failed to remove socket file", "error", rmErr)
			}
		}

		s.logger.Info("Server stopped", "uptime", time.Since(s.startTime).Round(time.Second).String())
	})
	return err
}

// Close releases the listener of a server that is not running
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
