package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/provision/internal/binary"
	"github.com/ZebulonRouseFrantzich/provision/internal/lock"
	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
	"github.com/ZebulonRouseFrantzich/provision/internal/release"
)

// Kind classifies why a run failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnsupportedPlatform
	KindReleaseLookupFailed
	KindNoReleasesFound
	KindAssetNotFound
	KindTooManyRedirects
	KindBadStatus
	KindTransportError
	KindExtractionFailed
	KindMissingExecutableAfterExtract
	KindPermissionSetFailed
	KindVerificationFailed
	KindInstallRootBusy
	KindStorageFailed
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:                       "Unknown",
	KindUnsupportedPlatform:           "UnsupportedPlatform",
	KindReleaseLookupFailed:           "ReleaseLookupFailed",
	KindNoReleasesFound:               "NoReleasesFound",
	KindAssetNotFound:                 "AssetNotFound",
	KindTooManyRedirects:              "TooManyRedirects",
	KindBadStatus:                     "BadStatus",
	KindTransportError:                "TransportError",
	KindExtractionFailed:              "ExtractionFailed",
	KindMissingExecutableAfterExtract: "MissingExecutableAfterExtract",
	KindPermissionSetFailed:           "PermissionSetFailed",
	KindVerificationFailed:            "VerificationFailed",
	KindInstallRootBusy:               "InstallRootBusy",
	KindStorageFailed:                 "StorageFailed",
	KindCanceled:                      "Canceled",
}

// String returns the kind name
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Failure is the error returned by a failed run. Err is the underlying
// typed error from the step that failed.
type Failure struct {
	Kind  Kind
	State State
	RunID string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("provisioning failed in %s (%s): %v", f.State, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// UserMessage is the single line shown to end users. Details go to the log
// under the run id.
func (f *Failure) UserMessage() string {
	if f.RunID == "" {
		return fmt.Sprintf("Failed to download the server (%s). Check the log for details.", f.Kind)
	}
	return fmt.Sprintf("Failed to download the server (%s). Check the log for run %s for details.", f.Kind, f.RunID)
}

// Fields returns key-value pairs describing the failure for structured logs.
func (f *Failure) Fields() []interface{} {
	kv := []interface{}{"state", string(f.State), "kind", f.Kind.String()}
	if f.RunID != "" {
		kv = append(kv, "run_id", f.RunID)
	}

	var (
		unsupported *platform.UnsupportedPlatformError
		lookupErr   *release.LookupError
		assetErr    *release.AssetNotFoundError
		unsafeName  *release.UnsafeAssetNameError
		statusErr   *binary.BadStatusError
		transport   *binary.TransportError
		extractErr  *binary.ExtractError
		missing     *binary.MissingExecutableError
		permErr     *binary.PermissionError
		verifyErr   *binary.VerificationError
	)
	switch {
	case errors.As(f.Err, &unsupported):
		kv = append(kv, "os", unsupported.OS, "arch", unsupported.Arch)
	case errors.As(f.Err, &lookupErr):
		kv = append(kv, "url", lookupErr.URL)
		if lookupErr.StatusCode != 0 {
			kv = append(kv, "status", lookupErr.StatusCode)
		}
	case errors.As(f.Err, &assetErr):
		kv = append(kv, "tag", assetErr.Tag, "platform", assetErr.Platform)
	case errors.As(f.Err, &unsafeName):
		kv = append(kv, "tag", unsafeName.Tag, "asset", unsafeName.Name)
	case errors.As(f.Err, &statusErr):
		kv = append(kv, "url", statusErr.URL, "status", statusErr.StatusCode)
	case errors.As(f.Err, &transport):
		kv = append(kv, "url", transport.URL)
	case errors.As(f.Err, &extractErr):
		kv = append(kv, "path", extractErr.Archive)
	case errors.As(f.Err, &missing):
		kv = append(kv, "path", missing.Path)
	case errors.As(f.Err, &permErr):
		kv = append(kv, "path", permErr.Path)
	case errors.As(f.Err, &verifyErr):
		kv = append(kv, "path", verifyErr.Path, "method", verifyErr.Method.String())
	}

	kv = append(kv, "error", f.Err.Error())
	return kv
}

// classify maps an error from a pipeline step to its Kind. The order
// matters: NoReleasesFound and TooManyRedirects are sentinels that may sit
// inside broader error types.
func classify(err error) Kind {
	var (
		unsupported *platform.UnsupportedPlatformError
		lookupErr   *release.LookupError
		assetErr    *release.AssetNotFoundError
		unsafeName  *release.UnsafeAssetNameError
		statusErr   *binary.BadStatusError
		transport   *binary.TransportError
		extractErr  *binary.ExtractError
		missing     *binary.MissingExecutableError
		permErr     *binary.PermissionError
		verifyErr   *binary.VerificationError
	)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &unsupported):
		return KindUnsupportedPlatform
	case errors.Is(err, release.ErrNoReleases):
		return KindNoReleasesFound
	case errors.As(err, &lookupErr):
		return KindReleaseLookupFailed
	case errors.As(err, &assetErr), errors.As(err, &unsafeName):
		return KindAssetNotFound
	case errors.Is(err, binary.ErrTooManyRedirects):
		return KindTooManyRedirects
	case errors.As(err, &statusErr):
		return KindBadStatus
	case errors.As(err, &transport):
		return KindTransportError
	case errors.As(err, &extractErr):
		return KindExtractionFailed
	case errors.As(err, &missing):
		return KindMissingExecutableAfterExtract
	case errors.As(err, &permErr):
		return KindPermissionSetFailed
	case errors.As(err, &verifyErr):
		return KindVerificationFailed
	case errors.Is(err, lock.ErrLockExists):
		return KindInstallRootBusy
	}
	return KindStorageFailed
}
