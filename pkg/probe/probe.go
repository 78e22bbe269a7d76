// Package probe fetches a page repeatedly and reports whether a cache in
// front of the responder froze the server time.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/responder"
	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/snapshot"
	"github.com/sand-blocks/tripco-hashicorp-cluster/version"
)

// Verdict summarizes a probe run
type Verdict string

const (
	// VerdictCached means every response carried the same server time
	VerdictCached Verdict = "cached"
	// VerdictUncached means the server time changed on every response
	VerdictUncached Verdict = "uncached"
	// VerdictPartial means some responses repeated a time and others did not
	VerdictPartial Verdict = "partial"
	// VerdictInconsistent means the server time went backwards
	VerdictInconsistent Verdict = "inconsistent"
)

// ParseVerdict returns the verdict named by s
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(s); v {
	case VerdictCached, VerdictUncached, VerdictPartial, VerdictInconsistent:
		return v, nil
	}
	return "", fmt.Errorf("invalid verdict %q: must be cached, uncached, partial or inconsistent", s)
}

const maxBodySize = 1 << 20

// Report is the outcome of a probe run
type Report struct {
	URL       string               `json:"url"`
	Verdict   Verdict              `json:"verdict"`
	Hosts     []string             `json:"hosts"`
	Snapshots []*snapshot.Snapshot `json:"snapshots"`
}

// Prober issues the requests
type Prober struct {
	client   *http.Client
	logger   *slog.Logger
	count    int
	interval time.Duration
}

// New creates a Prober. count below 2 is raised to 2.
func New(client *http.Client, logger *slog.Logger, count int, interval time.Duration) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if count < 2 {
		count = 2
	}
	return &Prober{
		client:   client,
		logger:   logger,
		count:    count,
		interval: interval,
	}
}

// Run fetches url count times, interval apart
func (p *Prober) Run(ctx context.Context, url string) (*Report, error) {
	report := &Report{URL: url}

	for i := 0; i < p.count; i++ {
		if i > 0 && p.interval > 0 {
			timer := time.NewTimer(p.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		snap, err := p.fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
		p.logger.Debug("Fetched page",
			"attempt", i+1,
			"host", snap.Host,
			"time", snap.Time,
			"request_id", snap.RequestID,
		)
		report.Snapshots = append(report.Snapshots, snap)
	}

	report.Hosts = distinctHosts(report.Snapshots)
	report.Verdict = Judge(report.Snapshots)
	return report, nil
}

func (p *Prober) fetch(ctx context.Context, url string) (*snapshot.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set(responder.RequestIDHeader, uuid.New().String())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	snap, err := snapshot.Parse(body)
	if err != nil {
		return nil, err
	}
	snap.Status = resp.StatusCode
	snap.RequestID = resp.Header.Get(responder.RequestIDHeader)
	snap.FetchedAt = time.Now()
	return snap, nil
}

// Judge classifies a sequence of snapshots by how the server time moved
func Judge(snaps []*snapshot.Snapshot) Verdict {
	if len(snaps) < 2 {
		return VerdictUncached
	}

	repeats, advances := 0, 0
	for i := 1; i < len(snaps); i++ {
		prev, cur := snaps[i-1].Instant, snaps[i].Instant
		switch {
		case cur.Before(prev):
			return VerdictInconsistent
		case cur.Equal(prev):
			repeats++
		default:
			advances++
		}
	}

	switch {
	case advances == 0:
		return VerdictCached
	case repeats == 0:
		return VerdictUncached
	default:
		return VerdictPartial
	}
}

func distinctHosts(snaps []*snapshot.Snapshot) []string {
	seen := make(map[string]bool)
	var hosts []string
	for _, s := range snaps {
		if !seen[s.Host] {
			seen[s.Host] = true
			hosts = append(hosts, s.Host)
		}
	}
	return hosts
}
