package pipeline

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ppiankov/deidentify/internal/table"
	"github.com/ppiankov/deidentify/internal/util"
)

// DefaultMaxBodyBytes caps the size of a fetched table
const DefaultMaxBodyBytes = 32 << 20

// Fetcher downloads tables published over HTTP
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(timeout time.Duration, maxBytes int64, httpProxy, httpsProxy, noProxy string) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	client := util.NewHTTPClient(timeout, httpProxy, httpsProxy, noProxy)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("stopped after 3 redirects")
		}
		return nil
	}

	return &Fetcher{
		httpClient: client,
		userAgent:  "deidentify/" + Version,
		maxBytes:   maxBytes,
	}
}

// FetchResult contains the fetched table body and how to parse it
type FetchResult struct {
	Body     io.ReadCloser
	Format   table.Format
	FinalURL string
}

// IsURL reports whether input names a remote table
func IsURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// Fetch retrieves a table from rawURL. The caller closes Body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/csv,text/tab-separated-values,text/html;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	finalURL := resp.Request.URL.String()
	return &FetchResult{
		Body:     limitedBody{Reader: io.LimitReader(resp.Body, f.maxBytes), Closer: resp.Body},
		Format:   formatFromResponse(resp.Header.Get("Content-Type"), resp.Request.URL),
		FinalURL: finalURL,
	}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}

// formatFromResponse prefers the declared media type and falls back to the
// URL path extension.
func formatFromResponse(contentType string, u *url.URL) table.Format {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "text/csv", "application/csv":
			return table.FormatCSV
		case "text/tab-separated-values":
			return table.FormatTSV
		case "text/html", "application/xhtml+xml":
			return table.FormatHTML
		}
	}
	return table.FormatFromPath(path.Base(u.Path))
}
