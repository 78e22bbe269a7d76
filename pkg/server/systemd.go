package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// notifySystemd sends state to the notify socket when running under systemd
func (s *Server) notifySystemd(state string) {
	if !s.systemdMode {
		return
	}

	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}

	// Abstract socket
	if socketPath[0] == '@' {
		socketPath = "\x00" + socketPath[1:]
	}

	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		s.logger.Debug("Failed to connect to systemd notify socket", "error", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		s.logger.Debug("Failed to send systemd notification", "error", err)
	}
}

// watchdogInterval returns half of WATCHDOG_USEC, or zero when unset
func watchdogInterval() (time.Duration, error) {
	watchdogUsec := os.Getenv("WATCHDOG_USEC")
	if watchdogUsec == "" {
		return 0, nil
	}

	usec, err := strconv.ParseInt(watchdogUsec, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid WATCHDOG_USEC %q: %w", watchdogUsec, err)
	}
	if usec <= 0 {
		return 0, nil
	}
	return time.Duration(usec) * time.Microsecond / 2, nil
}

// watchdogLoop pings systemd until ctx is done
func (s *Server) watchdogLoop(ctx context.Context) {
	if !s.systemdMode {
		return
	}

	interval, err := watchdogInterval()
	if err != nil {
		s.logger.Debug("Watchdog disabled", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	s.logger.Debug("Starting watchdog loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.notifySystemd("WATCHDOG=1")
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writePIDFile() error {
	if s.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	if err := os.WriteFile(s.pidFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	s.logger.Debug("Wrote PID file", "path", s.pidFile, "pid", pid)
	return nil
}

func (s *Server) removePIDFile() {
	if s.pidFile == "" {
		return
	}

	if err := os.Remove(s.pidFile); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove PID file", "path", s.pidFile, "error", err)
	}
}

// socketActivated reports whether systemd passed us a listening socket
func (s *Server) socketActivated() bool {
	return s.systemdMode && os.Getenv("LISTEN_FDS") != ""
}

// getListenerWithActivation uses the first systemd-passed socket when
// LISTEN_FDS is set, otherwise binds the configured address
func (s *Server) getListenerWithActivation() (net.Listener, error) {
	if !s.socketActivated() {
		return net.Listen(s.config.Network, s.config.Address)
	}

	numFDs, err := strconv.Atoi(os.Getenv("LISTEN_FDS"))
	if err != nil || numFDs < 1 {
		return net.Listen(s.config.Network, s.config.Address)
	}

	// Passed descriptors start at 3
	file := os.NewFile(uintptr(3), "systemd-socket")
	if file == nil {
		return net.Listen(s.config.Network, s.config.Address)
	}
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		s.logger.Warn("Failed to create listener from systemd socket", "error", err)
		return net.Listen(s.config.Network, s.config.Address)
	}

	s.logger.Info("Using systemd socket activation")
	return listener, nil
}
