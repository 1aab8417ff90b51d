package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
)

func TestFetchReturnsNormalizedItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssDoc))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	items, raw, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []byte(rssDoc), raw)
}

func TestFetchMalformedDocumentIsFetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>nope</html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	items, _, err := f.Fetch(context.Background(), srv.URL)
	require.Empty(t, items)

	var fetchErr *importer.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, srv.URL, fetchErr.FeedURL)
}

func TestFetchServerErrorIsFetchError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	items, _, err := f.Fetch(context.Background(), srv.URL)
	require.Empty(t, items)

	var fetchErr *importer.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestFetchTimeoutIsFetchError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := New(Config{Timeout: 50 * time.Millisecond}, zap.NewNop())
	_, _, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *importer.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestFetchUnreachableHostIsFetchError(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: 200 * time.Millisecond}, zap.NewNop())
	items, _, err := f.Fetch(context.Background(), "http://127.0.0.1:1/feed")
	require.Empty(t, items)

	var fetchErr *importer.FetchError
	require.ErrorAs(t, err, &fetchErr)
}
