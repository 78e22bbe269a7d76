package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"time"

	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/page"
)

// ErrNotAPage is returned when a body does not look like a rendered page
var ErrNotAPage = errors.New("response is not a cachecheck page")

var (
	hostPattern = regexp.MustCompile(`served by container\s*<code>([^<]*)</code>`)
	timePattern = regexp.MustCompile(`Server time is:\s*<code>([^<]*)</code>`)
)

// Snapshot is what a client observed in one response
type Snapshot struct {
	Host      string    `json:"host"`                 // Host identity reported by the page
	Time      string    `json:"time"`                 // Server time as rendered
	Instant   time.Time `json:"-"`                    // Time parsed
	RequestID string    `json:"request_id,omitempty"` // X-Request-Id of the response
	Status    int       `json:"status"`               // HTTP status code
	FetchedAt time.Time `json:"fetched_at"`           // Client clock at receipt
}

// Parse extracts the host and time from a rendered page body
func Parse(body []byte) (*Snapshot, error) {
	host := hostPattern.FindSubmatch(body)
	stamp := timePattern.FindSubmatch(body)
	if host == nil || stamp == nil {
		return nil, ErrNotAPage
	}

	timeStr := html.UnescapeString(string(stamp[1]))
	instant, err := time.Parse(page.TimeLayout, timeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid server time %q: %w", timeStr, err)
	}

	return &Snapshot{
		Host:    html.UnescapeString(string(host[1])),
		Time:    timeStr,
		Instant: instant,
	}, nil
}

// Marshal encodes snapshots as JSON
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}
