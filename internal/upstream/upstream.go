// Package upstream fetches tile payloads from the map data API and diff/state files
// from the replication feed.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammed-shakir/osm-tile-cache/internal/core/observability"
)

const UserAgent = "osm-tile-cache/1.0"

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.URL, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from upstream. The replication feed
// answers 404 for sequence numbers it has not published yet.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// get issues the request and returns the open response for 2xx statuses. Callers own
// the body.
func get(ctx context.Context, cli *http.Client, name, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := cli.Do(req)
	observability.ObserveUpstreamLatency(name, time.Since(start).Seconds())
	if err != nil {
		observability.IncUpstreamError(name, "transport")
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		_ = resp.Body.Close()
		observability.IncUpstreamError(name, "status")
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}
