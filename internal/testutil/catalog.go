package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Release is the catalog fixture shape. It is serialized with the same
// field names the GitHub REST API uses.
type Release struct {
	Tag        string
	Prerelease bool
	Assets     []string // asset names; download URLs point back at the server
}

// CatalogServer is a fake release catalog plus asset host.
//
//	GET /repos/{owner}/{repo}/releases/latest  -> Stable, or 404 when nil
//	GET /repos/{owner}/{repo}/releases         -> Recent, truncated to per_page
//	GET /download/{name}                        -> Files[name], after DownloadHops redirects
type CatalogServer struct {
	*httptest.Server

	mu           sync.Mutex
	Stable       *Release
	StableStatus int // overrides the /latest status when non-zero
	Recent       []Release
	Files        map[string][]byte
	DownloadHops int

	requests   map[string]int
	userAgents []string
}

// NewCatalogServer starts a server that is closed when the test ends.
func NewCatalogServer(t *testing.T) *CatalogServer {
	t.Helper()

	s := &CatalogServer{
		Files:    map[string][]byte{},
		requests: map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AssetURL returns the download URL the catalog advertises for name.
func (s *CatalogServer) AssetURL(name string) string {
	return s.URL + "/download/" + name
}

// Requests returns how many requests hit paths starting with prefix.
func (s *CatalogServer) Requests(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for path, count := range s.requests {
		if strings.HasPrefix(path, prefix) {
			n += count
		}
	}
	return n
}

// TotalRequests returns the number of requests served so far.
func (s *CatalogServer) TotalRequests() int {
	return s.Requests("/")
}

// UserAgents returns the User-Agent header of every request, in order.
func (s *CatalogServer) UserAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userAgents...)
}

func (s *CatalogServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	s.userAgents = append(s.userAgents, r.Header.Get("User-Agent"))
	stable, stableStatus := s.Stable, s.StableStatus
	recent := append([]Release(nil), s.Recent...)
	hops := s.DownloadHops
	body, haveFile := s.Files[strings.TrimPrefix(r.URL.Path, "/download/")]
	s.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/releases/latest"):
		if stableStatus != 0 {
			http.Error(w, http.StatusText(stableStatus), stableStatus)
			return
		}
		if stable == nil {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		s.writeJSON(w, s.render(*stable))

	case strings.HasSuffix(r.URL.Path, "/releases"):
		if n, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && n < len(recent) {
			recent = recent[:n]
		}
		out := make([]map[string]interface{}, 0, len(recent))
		for _, rel := range recent {
			out = append(out, s.render(rel))
		}
		s.writeJSON(w, out)

	case strings.HasPrefix(r.URL.Path, "/download/"):
		hop, _ := strconv.Atoi(r.URL.Query().Get("hop"))
		if hop < hops {
			http.Redirect(w, r, fmt.Sprintf("%s?hop=%d", r.URL.Path, hop+1), http.StatusFound)
			return
		}
		if !haveFile {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)

	default:
		http.NotFound(w, r)
	}
}

func (s *CatalogServer) render(rel Release) map[string]interface{} {
	assets := make([]map[string]interface{}, 0, len(rel.Assets))
	for _, name := range rel.Assets {
		assets = append(assets, map[string]interface{}{
			"name":                 name,
			"browser_download_url": s.AssetURL(name),
		})
	}
	return map[string]interface{}{
		"tag_name":   rel.Tag,
		"name":       rel.Tag,
		"prerelease": rel.Prerelease,
		"assets":     assets,
	}
}

func (s *CatalogServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
