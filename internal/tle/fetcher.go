package tle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// maxBodyBytes bounds a remote catalog download.
const maxBodyBytes = 50 << 20

// Fetcher retrieves an element catalog from an http(s) URL or a local file.
type Fetcher struct {
	source     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source.
func NewFetcher(source string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Source returns the configured source.
func (f *Fetcher) Source() string {
	return f.source
}

// Fetch returns the raw catalog bytes.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	if !strings.HasPrefix(f.source, "http://") && !strings.HasPrefix(f.source, "https://") {
		data, err := os.ReadFile(f.source)
		if err != nil {
			return nil, fmt.Errorf("reading element file: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.source, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching element data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.source)
	}

	// Read one byte past the limit to detect oversized bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}

	f.logger.Debug("element catalog fetched", "source", f.source, "bytes", len(body))
	return body, nil
}

// Load fetches and parses the catalog.
func (f *Fetcher) Load(ctx context.Context) (Catalog, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(strings.NewReader(string(data)), f.logger)
	if err != nil {
		return nil, err
	}
	f.logger.Info("element catalog loaded", "source", f.source, "entries", len(entries))
	return NewCatalog(entries), nil
}
