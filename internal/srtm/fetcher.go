package srtm

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TileNotFoundError indicates the public dataset has no tile under the
// requested name (ocean cells, off-coverage latitudes).
type TileNotFoundError struct {
	Tile string
	URL  string
}

func (e *TileNotFoundError) Error() string {
	return fmt.Sprintf("tile %s not found at %s", e.Tile, e.URL)
}

// Fetcher downloads raw elevation tiles from a public SRTM dataset laid out
// like the AWS terrain tiles bucket: {base}/{prefix}/{tile}.hgt.gz where the
// prefix is the first three characters of the tile name (the latitude band
// folder). Requests are anonymous; responses are gzip-compressed .hgt files.
type Fetcher struct {
	baseURL string
	client  *http.Client
}

// NewFetcher creates a fetcher against the given dataset base URL.
func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch downloads and decompresses one tile. A 404 reports TileNotFoundError;
// an empty decompressed body reports ErrInvalidFormat; other HTTP or
// transport failures propagate as plain errors. The fetcher does not retry.
func (f *Fetcher) Fetch(ctx context.Context, tileName string) ([]byte, error) {
	if len(tileName) < 3 {
		return nil, fmt.Errorf("%w: tile name %q", ErrInvalidFormat, tileName)
	}
	url := fmt.Sprintf("%s/%s/%s.hgt.gz", f.baseURL, tileName[:3], tileName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close tile response body", "tile", tileName, "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &TileNotFoundError{Tile: tileName, URL: url}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile fetch failed with status %d for %s", resp.StatusCode, url)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream for %s: %w", tileName, err)
	}
	defer func() {
		if closeErr := gz.Close(); closeErr != nil {
			slog.Warn("failed to close gzip reader", "tile", tileName, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tile %s: %w", tileName, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: tile %s decompressed to zero bytes", ErrInvalidFormat, tileName)
	}

	return data, nil
}
