package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

const (
	maxFetchSize = 5 << 20 // 5MB
	fetchTimeout = 10 * time.Second
)

// ErrFetch is returned when a URL cannot be retrieved.
var ErrFetch = errors.New("fetching url")

// Fetch downloads rawURL as a File. Only http and https URLs are accepted.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (File, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return File{}, fmt.Errorf("%w: invalid url %q", ErrFetch, rawURL)
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return File{}, fmt.Errorf("%w: %s returned status %d", ErrFetch, rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return File{}, fmt.Errorf("%w: reading response: %v", ErrFetch, err)
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = u.Host
	}
	return File{
		Name:        name,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
