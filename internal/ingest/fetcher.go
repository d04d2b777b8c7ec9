// Package ingest implements the snapshot refresh pipeline: fetching the ETL
// artifacts, parsing and re-evaluating them, persisting, and fanning out
// events and alerts. A cron scheduler and a bounded worker pool drive it.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

// maxArtifactBytes caps how much of an ETL response is read. The snapshot
// artifact is a few KB; the full history series stays well under this.
const maxArtifactBytes = 16 << 20

// Fetcher retrieves the snapshot and history artifacts from the ETL
// endpoints. Every request carries an explicit deadline; a cancelled context
// aborts the transfer.
type Fetcher struct {
	client      *http.Client
	snapshotURL string
	historyURL  string
	timeout     time.Duration
}

// NewFetcher creates a fetcher from ingest configuration.
func NewFetcher(cfg domain.IngestConfig) *Fetcher {
	timeout := time.Duration(cfg.FetchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:      &http.Client{},
		snapshotURL: cfg.SnapshotURL,
		historyURL:  cfg.HistoryURL,
		timeout:     timeout,
	}
}

// FetchSnapshot retrieves the latest factor snapshot artifact.
func (f *Fetcher) FetchSnapshot(ctx context.Context) ([]byte, error) {
	if f.snapshotURL == "" {
		return nil, fmt.Errorf("snapshot URL is not configured")
	}
	return f.fetch(ctx, f.snapshotURL)
}

// FetchHistory retrieves the historical series artifact.
func (f *Fetcher) FetchHistory(ctx context.Context) ([]byte, error) {
	if f.historyURL == "" {
		return nil, fmt.Errorf("history URL is not configured")
	}
	return f.fetch(ctx, f.historyURL)
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", url, err)
	}
	return data, nil
}
