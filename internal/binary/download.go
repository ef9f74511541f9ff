package binary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxRedirects is how many redirect hops a download may follow.
	DefaultMaxRedirects = 5
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "provision/1.0"
)

// Fetcher streams remote assets to local files. It follows redirects
// itself so the hop budget is enforced in one place.
type Fetcher struct {
	client    *http.Client
	userAgent string

	// MaxRedirects bounds the number of redirects followed per Fetch.
	MaxRedirects int
	// OnRedirect, when set, is called before each redirect is followed.
	OnRedirect func(hop int, from, to string)
}

// NewFetcher creates a fetcher around client. The client is copied and its
// own redirect handling disabled. A nil client gets DefaultTimeout.
func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	c := &http.Client{Timeout: DefaultTimeout}
	if client != nil {
		cp := *client
		c = &cp
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Fetcher{
		client:       c,
		userAgent:    userAgent,
		MaxRedirects: DefaultMaxRedirects,
	}
}

// Fetch downloads url to destPath.
//
// Redirect responses are followed until MaxRedirects hops have been used;
// one more redirect fails with ErrTooManyRedirects. Any other non-2xx status
// is a *BadStatusError. Network failures are *TransportError and leave no
// file at destPath.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string) error {
	target := url

	for hop := 0; ; hop++ {
		resp, err := f.get(ctx, target)
		if err != nil {
			discard(destPath)
			return &TransportError{URL: target, Err: err}
		}

		if isRedirect(resp.StatusCode) {
			loc, locErr := resp.Location()
			drainAndClose(resp)
			if locErr != nil {
				return &BadStatusError{URL: target, StatusCode: resp.StatusCode, Reason: "redirect without Location header"}
			}
			if hop >= f.MaxRedirects {
				return fmt.Errorf("download %s: %w (limit %d)", url, ErrTooManyRedirects, f.MaxRedirects)
			}
			if f.OnRedirect != nil {
				f.OnRedirect(hop+1, target, loc.String())
			}
			target = loc.String()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			drainAndClose(resp)
			return &BadStatusError{URL: target, StatusCode: resp.StatusCode}
		}

		err = f.save(resp, target, destPath)
		resp.Body.Close()
		return err
	}
}

// get issues a single GET without following redirects.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/octet-stream")

	return f.client.Do(req)
}

// save streams the body into a temp file beside destPath and renames it
// into place once the copy completed.
func (f *Fetcher) save(resp *http.Response, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		discard(destPath)
		return &TransportError{URL: url, Err: fmt.Errorf("copy response body: %w", err)}
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// discard removes a stale download, ignoring errors.
func discard(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".tmp")
}
