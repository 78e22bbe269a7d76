// Package responder serves the hostname and time page for every request.
package responder

import (
	"bytes"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/page"
)

// UnknownHost is reported when the host identity cannot be resolved
const UnknownHost = "unknown"

const contentType = "text/html; charset=utf-8"

// HostnameFunc resolves the identity of the serving machine
type HostnameFunc func() (string, error)

// StaticHostname returns a HostnameFunc that always reports name
func StaticHostname(name string) HostnameFunc {
	return func() (string, error) {
		return name, nil
	}
}

// Clock supplies the current instant
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time {
	return f()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Responder renders the page. It holds no mutable state and is safe for
// concurrent use.
type Responder struct {
	hostname HostnameFunc
	clock    Clock
	logger   *slog.Logger
}

// Option configures a Responder
type Option func(*Responder)

// WithHostname replaces os.Hostname as the identity source
func WithHostname(fn HostnameFunc) Option {
	return func(r *Responder) {
		r.hostname = fn
	}
}

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(r *Responder) {
		r.clock = c
	}
}

// WithLogger sets the logger used for warnings and render failures
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) {
		r.logger = logger
	}
}

// New creates a Responder backed by os.Hostname and the system clock
func New(opts ...Option) *Responder {
	r := &Responder{
		hostname: os.Hostname,
		clock:    systemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot resolves the values for one response
func (r *Responder) Snapshot() page.Data {
	return page.Data{
		Hostname: r.resolveHostname(),
		Time:     page.FormatTime(r.clock.Now()),
	}
}

func (r *Responder) resolveHostname() string {
	name, err := r.hostname()
	if err != nil {
		r.logger.Warn("Failed to resolve hostname", "error", err, "placeholder", UnknownHost)
		return UnknownHost
	}
	if name == "" {
		r.logger.Warn("Empty hostname", "placeholder", UnknownHost)
		return UnknownHost
	}
	return name
}

// render returns the status and body for one request
func (r *Responder) render() (int, []byte) {
	var buf bytes.Buffer
	if err := page.Render(&buf, r.Snapshot()); err != nil {
		r.logger.Error("Failed to render page", "error", err)
		return http.StatusInternalServerError, []byte(http.StatusText(http.StatusInternalServerError) + "\n")
	}
	return http.StatusOK, buf.Bytes()
}

// Handle is the gin handler. Method, path and headers are ignored.
func (r *Responder) Handle(c *gin.Context) {
	status, body := r.render()
	if status != http.StatusOK {
		c.Data(status, "text/plain; charset=utf-8", body)
		return
	}
	c.Data(status, contentType, body)
}

// ServeHTTP lets the Responder be mounted on any net/http mux
func (r *Responder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	status, body := r.render()
	if status != http.StatusOK {
		http.Error(w, string(bytes.TrimSpace(body)), status)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		r.logger.Debug("Failed to write response", "error", err)
	}
}
