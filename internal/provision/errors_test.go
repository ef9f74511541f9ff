package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/provision/internal/binary"
	"github.com/ZebulonRouseFrantzich/provision/internal/lock"
	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
	"github.com/ZebulonRouseFrantzich/provision/internal/release"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unsupported", &platform.UnsupportedPlatformError{OS: "aix", Arch: "ppc64"}, KindUnsupportedPlatform},
		{"no releases", release.ErrNoReleases, KindNoReleasesFound},
		{"wrapped no releases", fmt.Errorf("fallback: %w", release.ErrNoReleases), KindNoReleasesFound},
		{"lookup", &release.LookupError{URL: "u", StatusCode: 500, Err: errors.New("boom")}, KindReleaseLookupFailed},
		{"lookup not found", &release.LookupError{URL: "u", StatusCode: 404, Err: release.ErrReleaseNotFound}, KindReleaseLookupFailed},
		{"asset", &release.AssetNotFoundError{Tag: "v1", Platform: "linux-x86_64"}, KindAssetNotFound},
		{"unsafe asset name", &release.UnsafeAssetNameError{Tag: "v1", Name: "../x"}, KindAssetNotFound},
		{"redirects", fmt.Errorf("download u: %w (limit 5)", binary.ErrTooManyRedirects), KindTooManyRedirects},
		{"bad status", &binary.BadStatusError{URL: "u", StatusCode: 404}, KindBadStatus},
		{"transport", &binary.TransportError{URL: "u", Err: errors.New("reset")}, KindTransportError},
		{"extract", &binary.ExtractError{Archive: "a", Err: errors.New("bad")}, KindExtractionFailed},
		{"missing", &binary.MissingExecutableError{Path: "p"}, KindMissingExecutableAfterExtract},
		{"permission", &binary.PermissionError{Path: "p", Err: errors.New("EPERM")}, KindPermissionSetFailed},
		{"verification", &binary.VerificationError{Method: binary.VerificationSHA256, Path: "p", Err: errors.New("x")}, KindVerificationFailed},
		{"lock", lock.ErrLockExists, KindInstallRootBusy},
		{"canceled", &binary.TransportError{URL: "u", Err: context.Canceled}, KindCanceled},
		{"other", errors.New("disk full"), KindStorageFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if got := KindMissingExecutableAfterExtract.String(); got != "MissingExecutableAfterExtract" {
		t.Errorf("String() = %q", got)
	}
	if got := Kind(99).String(); got != "Kind(99)" {
		t.Errorf("String() = %q", got)
	}
}

func TestFailureFields(t *testing.T) {
	f := &Failure{
		Kind:  KindBadStatus,
		State: StateDownload,
		RunID: "run-1",
		Err:   &binary.BadStatusError{URL: "https://example.com/a.tar.gz", StatusCode: 403},
	}

	fields := f.Fields()
	if len(fields)%2 != 0 {
		t.Fatalf("Fields() has odd length %d", len(fields))
	}

	got := map[string]interface{}{}
	for i := 0; i < len(fields); i += 2 {
		got[fields[i].(string)] = fields[i+1]
	}

	want := map[string]interface{}{
		"state":  "Download",
		"kind":   "BadStatus",
		"run_id": "run-1",
		"url":    "https://example.com/a.tar.gz",
		"status": 403,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["error"]; !ok {
		t.Error("error field missing")
	}
}

func TestFailureMessages(t *testing.T) {
	inner := release.ErrNoReleases
	f := &Failure{Kind: KindNoReleasesFound, State: StateFetchRelease, RunID: "abc", Err: inner}

	if !errors.Is(f, inner) {
		t.Error("Failure should unwrap to the step error")
	}
	if !strings.Contains(f.Error(), "FetchRelease") || !strings.Contains(f.Error(), "NoReleasesFound") {
		t.Errorf("Error() = %q", f.Error())
	}
	if !strings.Contains(f.UserMessage(), "abc") {
		t.Errorf("UserMessage() = %q should point at the run id", f.UserMessage())
	}
}
