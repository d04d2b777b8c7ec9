package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

func TestFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("FetchSnapshot", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("expected Accept header, got %q", r.Header.Get("Accept"))
			}
			w.Write([]byte(`{"as_of_utc":"2026-02-10T06:00:00Z"}`))
		}))
		defer srv.Close()

		f := NewFetcher(domain.IngestConfig{SnapshotURL: srv.URL, FetchTimeout: 5})

		data, err := f.FetchSnapshot(ctx)
		if err != nil {
			t.Fatalf("FetchSnapshot failed: %v", err)
		}
		if !strings.Contains(string(data), "as_of_utc") {
			t.Errorf("unexpected body: %s", data)
		}
	})

	t.Run("Non2xxStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream broken", http.StatusBadGateway)
		}))
		defer srv.Close()

		f := NewFetcher(domain.IngestConfig{SnapshotURL: srv.URL, FetchTimeout: 5})

		if _, err := f.FetchSnapshot(ctx); err == nil {
			t.Error("expected error for 502 response")
		}
	})

	t.Run("TimeoutCancelsRequest", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(block)

		f := NewFetcher(domain.IngestConfig{SnapshotURL: srv.URL})
		f.timeout = 50 * time.Millisecond

		start := time.Now()
		_, err := f.FetchSnapshot(ctx)
		if err == nil {
			t.Fatal("expected timeout error")
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("fetch did not cancel promptly, took %v", elapsed)
		}
	})

	t.Run("MissingURLs", func(t *testing.T) {
		f := NewFetcher(domain.IngestConfig{})
		if _, err := f.FetchSnapshot(ctx); err == nil {
			t.Error("expected error without snapshot URL")
		}
		if _, err := f.FetchHistory(ctx); err == nil {
			t.Error("expected error without history URL")
		}
	})

	t.Run("ContextCancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		f := NewFetcher(domain.IngestConfig{HistoryURL: srv.URL, FetchTimeout: 30})

		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		if _, err := f.FetchHistory(cctx); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
