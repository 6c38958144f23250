// Package fetcher downloads and parses the tabular sources the jurisdiction
// registry is populated from (CSV, XLSX, remote sheets) and provides the
// per-host rate limiting shared by outbound lookups.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading a remote registry sheet.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
