package opener

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/pkg/browser"
)

// Opener shows served pages in the local browser
type Opener struct {
	logger *slog.Logger
	open   func(string) error
	mu     sync.Mutex
}

// New creates a new Opener
func New(logger *slog.Logger) *Opener {
	return &Opener{
		logger: logger,
		open:   browser.OpenURL,
	}
}

// OpenURL opens an http or https URL in the default browser
func (o *Opener) OpenURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("cannot open %q: only http and https URLs are supported", rawURL)
	}

	// One browser launch at a time
	o.mu.Lock()
	defer o.mu.Unlock()

	o.logger.Info("Opening URL", "url", rawURL)

	if err := o.open(rawURL); err != nil {
		o.logger.Error("Failed to open URL", "url", rawURL, "error", err)
		return fmt.Errorf("failed to open URL: %w", err)
	}

	o.logger.Debug("Successfully opened URL", "url", rawURL)
	return nil
}

// OpenServed is a server ready hook; it logs instead of failing
func (o *Opener) OpenServed(rawURL string) {
	if err := o.OpenURL(rawURL); err != nil {
		o.logger.Warn("Could not open browser", "error", err)
	}
}
