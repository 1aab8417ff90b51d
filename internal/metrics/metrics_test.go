package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeFeed(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://jobicy.com/?feed=job_feed", "jobicy.com"},
		{"standard https", "https://Example.com/rss", "example.com"},
		{"no scheme", "example.com/feed", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeFeed(tc.input); got != tc.expected {
				t.Errorf("SanitizeFeed(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if importerItemsTotal == nil || importerFeedFetchesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveItem("created")
	if val := testutil.ToFloat64(importerItemsTotal.WithLabelValues("created")); val != 1 {
		t.Errorf("Expected importerItemsTotal to be 1, got %f", val)
	}

	ObserveFeedFetch("https://jobicy.com/?feed=job_feed", "success")
	if val := testutil.ToFloat64(importerFeedFetchesTotal.WithLabelValues("jobicy.com", "success")); val != 1 {
		t.Errorf("Expected importerFeedFetchesTotal to be 1, got %f", val)
	}
}
