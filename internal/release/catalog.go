package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"
	// DefaultUserAgent identifies catalog and download requests.
	DefaultUserAgent = "provision/1.0"
	// DefaultTimeout bounds a single catalog request.
	DefaultTimeout = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	// Repo is the "owner/name" slug of the project whose releases are queried.
	Repo string
	// APIURL overrides DefaultAPIURL (tests, enterprise hosts).
	APIURL string
	// UserAgent overrides DefaultUserAgent.
	UserAgent string
	// Token is sent as a bearer token when non-empty.
	Token string
	// HTTPClient is used for all requests. A client with DefaultTimeout is
	// created when nil.
	HTTPClient *http.Client
}

// Client reads releases from the catalog. It holds no state between calls.
type Client struct {
	httpClient *http.Client
	apiURL     string
	owner      string
	repo       string
	userAgent  string
	token      string
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	owner, repo, ok := strings.Cut(opts.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("repo must be in owner/name form, got %q", opts.Repo)
	}

	c := &Client{
		httpClient: opts.HTTPClient,
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		owner:      owner,
		repo:       repo,
		userAgent:  opts.UserAgent,
		token:      opts.Token,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	return c, nil
}

// Repo returns the "owner/name" slug the client queries.
func (c *Client) Repo() string {
	return c.owner + "/" + c.repo
}

// FetchLatestRelease returns the latest stable release, or the most recent
// release of any kind when the project has no stable release yet.
func (c *Client) FetchLatestRelease(ctx context.Context) (*Release, error) {
	rel, err := c.LatestStable(ctx)
	if err == nil {
		return rel, nil
	}
	if !errors.Is(err, ErrReleaseNotFound) {
		return nil, err
	}

	recent, err := c.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, ErrNoReleases
	}
	return &recent[0], nil
}

// LatestStable queries /releases/latest, which never returns pre-releases.
func (c *Client) LatestStable(ctx context.Context) (*Release, error) {
	var rel Release
	if err := c.getJSON(ctx, c.repoPath("releases/latest"), &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// Recent returns up to n releases, newest first, pre-releases included.
func (c *Client) Recent(ctx context.Context, n int) ([]Release, error) {
	q := url.Values{}
	q.Set("per_page", fmt.Sprint(n))

	var rels []Release
	if err := c.getJSON(ctx, c.repoPath("releases")+"?"+q.Encode(), &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s", c.apiURL, url.PathEscape(c.owner), url.PathEscape(c.repo), suffix)
}

// getJSON performs one GET and decodes a 2xx body into v.
func (c *Client) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &LookupError{URL: u, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &LookupError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &LookupError{URL: u, StatusCode: resp.StatusCode, Err: ErrReleaseNotFound}
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return &LookupError{URL: u, StatusCode: resp.StatusCode, Err: errors.New("API rate limit exceeded; configure a token")}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &LookupError{URL: u, StatusCode: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &LookupError{URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
