// Package feed retrieves syndication feeds and normalizes their
// entries into the importer's uniform item shape.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/importer"
)

const defaultMaxBodyBytes = 10 << 20

// Config controls Fetcher behavior.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// Fetcher retrieves a feed document over HTTP with a bounded timeout
// and hands it to the normalizer.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

// New constructs a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Fetch retrieves feedURL and returns its normalized items along with
// the raw document for archival. Transport and parse failures come back
// as *importer.FetchError with an empty item slice: a broken feed never
// aborts its siblings.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]importer.NormalizedItem, []byte, error) {
	body, err := f.retrieve(ctx, feedURL)
	if err != nil {
		f.logger.Warn("feed retrieval failed", zap.String("feed_url", feedURL), zap.Error(err))
		return nil, nil, &importer.FetchError{FeedURL: feedURL, Err: err}
	}

	doc, err := parseDocument(body)
	if err != nil {
		f.logger.Warn("feed parse failed", zap.String("feed_url", feedURL), zap.Error(err))
		return nil, nil, &importer.FetchError{FeedURL: feedURL, Err: err}
	}

	items := Normalize(doc)
	f.logger.Debug("feed fetched",
		zap.String("feed_url", feedURL),
		zap.String("kind", string(doc.Kind)),
		zap.Int("items", len(items)),
	)
	return items, body, nil
}

func (f *Fetcher) retrieve(ctx context.Context, feedURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn("close response body failed", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
