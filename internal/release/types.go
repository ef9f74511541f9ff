package release

import (
	"errors"
	"fmt"
)

// Release is one tagged publication in the catalog.
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	HTMLURL    string  `json:"html_url"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release. Assets keep the order
// the catalog returned them in.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
}

var (
	// ErrReleaseNotFound is wrapped by a LookupError when the catalog answers 404.
	ErrReleaseNotFound = errors.New("release not found")
	// ErrNoReleases means the fallback query returned an empty list.
	ErrNoReleases = errors.New("no releases found in repository")
)

// LookupError describes a failed catalog query.
type LookupError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("release lookup %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("release lookup %s: %v", e.URL, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// AssetNotFoundError is returned when no asset in a release matches the
// host vocabulary.
type AssetNotFoundError struct {
	Tag      string
	Platform string
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("no compatible asset found for %s in release %s", e.Platform, e.Tag)
}

// UnsafeAssetNameError is returned when the selected asset's name cannot be
// used as a file name inside the storage root.
type UnsafeAssetNameError struct {
	Tag  string
	Name string
}

func (e *UnsafeAssetNameError) Error() string {
	return fmt.Sprintf("asset %q in release %s is not a usable file name", e.Name, e.Tag)
}
