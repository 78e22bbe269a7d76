package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/config"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/responder"
)

var isoPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z`)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.ShutdownTimeout = "2s"
	return cfg
}

func testHandler(opts ...responder.Option) http.Handler {
	opts = append([]responder.Option{
		responder.WithHostname(responder.StaticHostname("test-host")),
		responder.WithLogger(testLogger()),
	}, opts...)
	return responder.Engine(responder.New(opts...), testLogger())
}

// startServer runs s in the background and returns its URL and a stop
// function that waits for Run to return
func startServer(t *testing.T, s *Server) (string, func() error) {
	t.Helper()

	ready := make(chan string, 1)
	s.onReady = append(s.onReady, func(url string) { ready <- url })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	select {
	case url := <-ready:
		return url, func() error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancel")
				return nil
			}
		}
	case err := <-done:
		cancel()
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}
	return "", nil
}

func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestRunServesAndShutsDown(t *testing.T) {
	var out bytes.Buffer
	s, err := New(testConfig(), testHandler(), testLogger(), WithOutput(&out))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	url, stop := startServer(t, s)

	status, body := get(t, http.DefaultClient, url)
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "<h1>Hello, Candidate!</h1>") {
		t.Errorf("body missing greeting: %s", body)
	}
	if !strings.Contains(body, "<code>test-host</code>") {
		t.Errorf("body missing hostname: %s", body)
	}

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	if got := out.String(); got != "Server running on "+url+"\n" {
		t.Errorf("startup line = %q, want announcement of %s", got, url)
	}
	if _, err := http.Get(url); err == nil {
		t.Error("server still accepting connections after shutdown")
	}
}

func TestRunAddressInUse(t *testing.T) {
	first, err := New(testConfig(), testHandler(), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := first.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer first.Close()

	cfg := testConfig()
	cfg.Address = first.Addr().String()
	second, err := New(cfg, testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = second.Run(ctx)
	if err == nil {
		t.Fatal("Run() on a bound port should fail")
	}
	if !IsAddressInUse(err) {
		t.Errorf("IsAddressInUse(%v) = false, want true", err)
	}
	if !strings.Contains(err.Error(), "failed to start listener") {
		t.Errorf("Run() error = %v, want listener failure", err)
	}
}

func TestSameHostBackToBack(t *testing.T) {
	s, err := New(testConfig(), testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	url, stop := startServer(t, s)
	defer stop()

	_, first := get(t, http.DefaultClient, url)
	_, second := get(t, http.DefaultClient, url)

	hostRe := regexp.MustCompile(`served by container\s*<code>([^<]*)</code>`)
	a, b := hostRe.FindStringSubmatch(first), hostRe.FindStringSubmatch(second)
	if a == nil || b == nil {
		t.Fatalf("hostname not found in bodies:\n%s\n%s", first, second)
	}
	if a[1] != b[1] {
		t.Errorf("hostname changed between requests: %q then %q", a[1], b[1])
	}
}

func TestTimestampsDifferAfterOneSecond(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps for over a second")
	}

	s, err := New(testConfig(), testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	url, stop := startServer(t, s)
	defer stop()

	_, first := get(t, http.DefaultClient, url)
	time.Sleep(1100 * time.Millisecond)
	_, second := get(t, http.DefaultClient, url)

	a, b := isoPattern.FindString(first), isoPattern.FindString(second)
	if a == "" || b == "" {
		t.Fatalf("timestamps missing: %q %q", a, b)
	}
	if a == b {
		t.Errorf("timestamps equal across requests: %s", a)
	}

	ta, err := time.Parse(time.RFC3339Nano, a)
	if err != nil {
		t.Fatalf("first timestamp %q not ISO-8601: %v", a, err)
	}
	tb, err := time.Parse(time.RFC3339Nano, b)
	if err != nil {
		t.Fatalf("second timestamp %q not ISO-8601: %v", b, err)
	}
	if tb.Before(ta) {
		t.Errorf("timestamps went backwards: %s then %s", a, b)
	}
}

func TestUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "run", "cc.sock")

	cfg := testConfig()
	cfg.Network = "unix"
	cfg.Address = socketPath

	s, err := New(cfg, testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	url, stop := startServer(t, s)

	if url != "http+unix://"+socketPath {
		t.Errorf("URL() = %q, want http+unix://%s", url, socketPath)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
	status, body := get(t, client, "http://unix/anything")
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "<code>test-host</code>") {
		t.Errorf("body missing hostname: %s", body)
	}

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after shutdown: %v", err)
	}
}

func TestPIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "cachecheck.pid")

	cfg := testConfig()
	cfg.PIDFile = pidPath

	s, err := New(cfg, testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, stop := startServer(t, s)

	data, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("PID file not written: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("PID file = %q, want %d", data, os.Getpid())
	}

	if err := stop(); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Errorf("PID file still present after shutdown: %v", err)
	}
}

type stubListener struct {
	addr net.Addr
}

func (l stubListener) Accept() (net.Conn, error) { return nil, net.ErrClosed }
func (l stubListener) Close() error              { return nil }
func (l stubListener) Addr() net.Addr            { return l.addr }

func TestURL(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want string
	}{
		{
			name: "unspecified ipv4",
			addr: &net.TCPAddr{IP: net.IPv4zero, Port: 8080},
			want: "http://localhost:8080/",
		},
		{
			name: "unspecified ipv6",
			addr: &net.TCPAddr{IP: net.IPv6unspecified, Port: 8080},
			want: "http://localhost:8080/",
		},
		{
			name: "loopback",
			addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000},
			want: "http://127.0.0.1:9000/",
		},
		{
			name: "ipv6 loopback",
			addr: &net.TCPAddr{IP: net.IPv6loopback, Port: 9000},
			want: "http://[::1]:9000/",
		},
		{
			name: "unix socket",
			addr: &net.UnixAddr{Name: "/run/cc.sock", Net: "unix"},
			want: "http+unix:///run/cc.sock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{listener: stubListener{addr: tt.addr}}
			if got := s.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := (&Server{}).URL(); got != "" {
		t.Errorf("URL() before Listen = %q, want empty", got)
	}
}

func TestNewRejectsBadTimeouts(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = "forever"

	if _, err := New(cfg, testHandler(), testLogger()); err == nil {
		t.Error("New() with invalid timeout should fail")
	}
}

func TestListenRefusesNonSocketAddress(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	keep := filepath.Join(dataDir, "sub", "keep.txt")
	if err := os.MkdirAll(filepath.Dir(keep), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(keep, []byte("keep me"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	plainFile := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(plainFile, []byte("notes"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	for _, addr := range []string{dataDir, plainFile} {
		t.Run(filepath.Base(addr), func(t *testing.T) {
			cfg := testConfig()
			cfg.Network = "unix"
			cfg.Address = addr

			s, err := New(cfg, testHandler(), testLogger(), WithOutput(io.Discard))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			err = s.Listen()
			if err == nil {
				s.Close()
				t.Fatalf("Listen() on %s should fail", addr)
			}
			if !strings.Contains(err.Error(), "is not a socket") {
				t.Errorf("Listen() error = %v, want not-a-socket error", err)
			}
		})
	}

	if data, err := os.ReadFile(keep); err != nil || string(data) != "keep me" {
		t.Errorf("directory contents changed: %q, %v", data, err)
	}
	if data, err := os.ReadFile(plainFile); err != nil || string(data) != "notes" {
		t.Errorf("file contents changed: %q, %v", data, err)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "cc.sock")

	stale, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	// Leave the socket file behind as a crashed process would
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()

	cfg := testConfig()
	cfg.Network = "unix"
	cfg.Address = socketPath

	s, err := New(cfg, testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() over stale socket error = %v", err)
	}
	defer s.Close()
}

func TestUnixSocketPermissions(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "cc.sock")

	cfg := testConfig()
	cfg.Network = "unix"
	cfg.Address = socketPath

	s, err := New(cfg, testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer s.Close()

	fi, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := fi.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("socket permissions = %v, want owner only", perm)
	}
}

func TestRunCleansUpWhenServeFails(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")
	notify, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sockPath, Net: "unixgram"})
	if err != nil {
		t.Fatalf("ListenUnixgram() error = %v", err)
	}
	defer notify.Close()
	t.Setenv("NOTIFY_SOCKET", sockPath)
	t.Setenv("LISTEN_FDS", "")
	t.Setenv("WATCHDOG_USEC", "")

	cfg := testConfig()
	cfg.Systemd = true
	s, err := New(cfg, testHandler(), testLogger(), WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ready := make(chan struct{})
	s.onReady = append(s.onReady, func(string) { close(ready) })

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	// Break the listener out from under Serve
	s.listener.Close()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "server failed") {
			t.Errorf("Run() error = %v, want server failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after listener failure")
	}

	if err := notify.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() error = %v", err)
	}
	var states []string
	buf := make([]byte, 64)
	for len(states) < 2 {
		n, err := notify.Read(buf)
		if err != nil {
			break
		}
		states = append(states, string(buf[:n]))
	}
	if len(states) != 2 || states[0] != "READY=1" || states[1] != "STOPPING=1" {
		t.Errorf("systemd notifications = %v, want [READY=1 STOPPING=1]", states)
	}
}
