package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

// MapAPI fetches raw map data for a bounding box, e.g. https://api.openstreetmap.org/api/0.6/map.
type MapAPI struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint *url.URL
}

func NewMapAPI(logger *slog.Logger, client *http.Client, endpoint string) (*MapAPI, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse map api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("map api url %q: scheme and host required", endpoint)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MapAPI{logger: logger, client: client, endpoint: u}, nil
}

// FetchBBox returns the payload for the box and the content type declared upstream.
func (a *MapAPI) FetchBBox(ctx context.Context, b mercator.Bounds) ([]byte, string, error) {
	u := *a.endpoint
	q := u.Query()
	q.Set("bbox", b.BBoxParam())
	u.RawQuery = q.Encode()

	resp, err := get(ctx, a.client, "map_api", u.String())
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = cache.DefaultContentType
	}
	a.logger.DebugContext(ctx, "map api fetch", "bbox", b.BBoxParam(), "bytes", len(body))
	return body, ct, nil
}
