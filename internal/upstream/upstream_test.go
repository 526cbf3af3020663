package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
	"github.com/mohammed-shakir/osm-tile-cache/internal/replication"
)

func TestMapAPI_FetchBBox(t *testing.T) {
	var gotBBox, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBBox = r.URL.Query().Get("bbox")
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte("<osm/>"))
	}))
	defer srv.Close()

	api, err := NewMapAPI(nil, httpclient.NewOutbound(), srv.URL+"/api/0.6/map")
	if err != nil {
		t.Fatal(err)
	}
	b := mercator.Bounds{MinLat: 44.53, MinLon: -93.78, MaxLat: 45.44, MaxLon: -92.61}
	body, ct, err := api.FetchBBox(context.Background(), b)
	if err != nil {
		t.Fatalf("FetchBBox: %v", err)
	}
	if gotBBox != "-93.7800000,44.5300000,-92.6100000,45.4400000" {
		t.Fatalf("bbox=%q", gotBBox)
	}
	if gotUA != UserAgent {
		t.Fatalf("user agent=%q", gotUA)
	}
	if string(body) != "<osm/>" {
		t.Fatalf("body=%q", body)
	}
	// httptest sniffs text/xml for this body; fall back only applies when unset.
	if ct == "" {
		t.Fatal("empty content type")
	}
}

func TestMapAPI_DefaultContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	api, _ := NewMapAPI(nil, srv.Client(), srv.URL)
	_, ct, err := api.FetchBBox(context.Background(), mercator.Bounds{})
	if err != nil {
		t.Fatal(err)
	}
	if ct != cache.DefaultContentType {
		t.Fatalf("ct=%q", ct)
	}
}

func TestMapAPI_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "You requested too many nodes", http.StatusBadRequest)
	}))
	defer srv.Close()

	api, _ := NewMapAPI(nil, srv.Client(), srv.URL)
	_, _, err := api.FetchBBox(context.Background(), mercator.Bounds{})
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("err=%v", err)
	}
	if IsNotFound(err) {
		t.Fatal("400 reported as not found")
	}
}

func TestNewMapAPI_RejectsRelative(t *testing.T) {
	if _, err := NewMapAPI(nil, http.DefaultClient, "/api/map"); err == nil {
		t.Fatal("expected error")
	}
}

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFeed_DiffAndState(t *testing.T) {
	diff := gz(t, "<osmChange/>")
	mux := http.NewServeMux()
	mux.HandleFunc("/replication/minute/004/123/456.osc.gz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(diff)
	})
	mux.HandleFunc("/replication/minute/004/123/456.state.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "#Sat Jan 03 10:00:02 UTC 2026\nsequenceNumber=4123456\ntimestamp=2026-01-03T10\\:00\\:00Z\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, err := NewFeed(nil, srv.Client(), srv.URL+"/replication/minute/")
	if err != nil {
		t.Fatal(err)
	}
	if got := f.DiffURL(4123456); got != srv.URL+"/replication/minute/004/123/456.osc.gz" {
		t.Fatalf("DiffURL=%s", got)
	}

	rc, err := f.Diff(context.Background(), 4123456)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	b, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(b) != "<osmChange/>" {
		t.Fatalf("diff=%q err=%v", b, err)
	}

	st, err := f.State(context.Background(), 4123456)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	want := time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)
	if st.SequenceNumber != 4123456 || !st.Timestamp.Equal(want) {
		t.Fatalf("state=%+v", st)
	}
}

func TestFeed_MissingSequence(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f, _ := NewFeed(nil, srv.Client(), srv.URL)
	_, err := f.Diff(context.Background(), 1)
	if !IsNotFound(err) || !errors.Is(err, replication.ErrNotPublished) {
		t.Fatalf("Diff err=%v", err)
	}
	if _, err := f.State(context.Background(), 1); !IsNotFound(err) {
		t.Fatalf("State err=%v", err)
	}
}

func TestFeed_BadGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not gzip"))
	}))
	defer srv.Close()

	f, _ := NewFeed(nil, srv.Client(), srv.URL)
	if _, err := f.Diff(context.Background(), 7); err == nil {
		t.Fatal("expected gunzip error")
	}
}
