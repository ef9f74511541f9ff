package platform

import "fmt"

// Vocabulary is the naming convention release assets use for one host:
// the keywords an asset name must contain and the executable it unpacks.
type Vocabulary struct {
	OSKeyword   string
	ArchKeyword string
	BinaryName  string
}

// UnsupportedPlatformError is returned by Resolve for an OS outside the
// supported set.
type UnsupportedPlatformError struct {
	OS   string
	Arch string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %s (arch %s)", e.OS, e.Arch)
}

// Resolve translates a host OS/arch pair into the asset vocabulary for tool.
//
//	windows -> "windows", "x64" (fixed),            "<tool>.exe"
//	macOS   -> "macos",   arch unchanged,           "<tool>"
//	linux   -> "linux",   "x86_64" for "x64" else arch, "<tool>"
//
// This table is the only place the translation happens.
func Resolve(osName, archName, tool string) (Vocabulary, error) {
	goos, ok := normalizeOS(osName)
	if !ok {
		return Vocabulary{}, &UnsupportedPlatformError{OS: osName, Arch: archName}
	}

	switch goos {
	case OSWindows:
		return Vocabulary{OSKeyword: "windows", ArchKeyword: "x64", BinaryName: tool + ".exe"}, nil
	case OSMacOS:
		return Vocabulary{OSKeyword: "macos", ArchKeyword: archName, BinaryName: tool}, nil
	default:
		arch := archName
		if arch == "x64" {
			arch = "x86_64"
		}
		return Vocabulary{OSKeyword: "linux", ArchKeyword: arch, BinaryName: tool}, nil
	}
}

// String renders the vocabulary for diagnostics, e.g. "linux-x86_64".
func (v Vocabulary) String() string {
	return v.OSKeyword + "-" + v.ArchKeyword
}
