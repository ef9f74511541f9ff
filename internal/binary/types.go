package binary

import (
	"errors"
	"fmt"
)

// ErrTooManyRedirects is returned when a download exhausts its redirect budget.
var ErrTooManyRedirects = errors.New("too many redirects")

// BadStatusError is a download response that was neither 2xx nor a redirect.
type BadStatusError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *BadStatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("download %s: status %d: %s", e.URL, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("download %s: unexpected status code %d", e.URL, e.StatusCode)
}

// TransportError is a network failure while requesting or streaming a download.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExtractError means an archive could not be unpacked.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// MissingExecutableError means an archive unpacked cleanly but did not
// contain the expected executable.
type MissingExecutableError struct {
	Path string
}

func (e *MissingExecutableError) Error() string {
	return fmt.Sprintf("executable not found at %s after extraction", e.Path)
}

// PermissionError means the executable bits could not be set.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("set executable %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// VerificationMethod indicates how a download was verified.
type VerificationMethod int

const (
	// VerificationNone means no integrity check ran.
	VerificationNone VerificationMethod = iota
	// VerificationGPG is an OpenPGP detached signature check.
	VerificationGPG
	// VerificationSHA256 is a checksum-file comparison.
	VerificationSHA256
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "GPG"
	case VerificationSHA256:
		return "SHA256"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// VerificationError is a failed integrity check.
type VerificationError struct {
	Method VerificationMethod
	Path   string
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s verification of %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
