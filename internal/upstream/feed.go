package upstream

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mohammed-shakir/osm-tile-cache/internal/replication"
)

// Feed reads a replication directory such as https://planet.openstreetmap.org/replication/minute.
type Feed struct {
	logger *slog.Logger
	client *http.Client
	base   string
}

var _ replication.Source = (*Feed)(nil)

func NewFeed(logger *slog.Logger, client *http.Client, base string) (*Feed, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("feed url %q: scheme and host required", base)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{logger: logger, client: client, base: strings.TrimRight(base, "/")}, nil
}

func (f *Feed) DiffURL(seq int64) string {
	return f.base + "/" + replication.SequencePath(seq) + ".osc.gz"
}

func (f *Feed) StateURL(seq int64) string {
	return f.base + "/" + replication.SequencePath(seq) + ".state.txt"
}

// Diff returns the decompressed osmChange document for seq. Closing the reader
// releases the connection.
func (f *Feed) Diff(ctx context.Context, seq int64) (io.ReadCloser, error) {
	u := f.DiffURL(seq)
	resp, err := get(ctx, f.client, "replication_diff", u)
	if err != nil {
		return nil, notPublished(err)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("gunzip %s: %w", u, err)
	}
	f.logger.DebugContext(ctx, "replication diff opened", "url", u)
	return &gzipBody{Reader: zr, body: resp.Body}, nil
}

func (f *Feed) State(ctx context.Context, seq int64) (replication.State, error) {
	u := f.StateURL(seq)
	resp, err := get(ctx, f.client, "replication_state", u)
	if err != nil {
		return replication.State{}, notPublished(err)
	}
	defer func() { _ = resp.Body.Close() }()

	st, err := replication.ParseState(resp.Body)
	if err != nil {
		return replication.State{}, fmt.Errorf("state %s: %w", u, err)
	}
	return st, nil
}

// notPublished tags a 404 so the loop can tell "not yet" apart from an outage.
func notPublished(err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %w", replication.ErrNotPublished, err)
	}
	return err
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipBody) Close() error {
	zerr := g.Reader.Close()
	berr := g.body.Close()
	if zerr != nil {
		return zerr
	}
	return berr
}
