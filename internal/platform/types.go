// Package platform detects the host operating system and architecture and
// translates them into the vocabulary that release assets are named with.
//
// Detection uses runtime.GOOS/GOARCH for the pair that drives asset
// selection and gopsutil for Linux distribution details, which are only
// reported as diagnostics. Architecture is expressed in host vocabulary
// ("x64", "arm64", "ia32", "arm") rather than Go's GOARCH names, because
// the vocabulary table in Resolve is keyed on those strings.
package platform

import "context"

// Operating system names as reported by Info.OS.
const (
	OSLinux   = "linux"
	OSMacOS   = "darwin"
	OSWindows = "windows"
)

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // host vocabulary: "x64", "arm64", "ia32", "arm"
	ArchRaw  string // original GOARCH (e.g., "amd64")
	Platform string // distro ID (Linux only, e.g., "ubuntu", "arch")
	Family   string // canonical family (e.g., "debian", "rhel", "arch")
	Version  string // distro version (Linux only, e.g., "22.04")
}

// Distro contains Linux distribution information.
type Distro struct {
	ID      string
	Family  string
	Version string
}

// GetDistro returns distro information if this is a Linux platform.
// Returns nil for non-Linux platforms or if distro detection failed.
func (i *Info) GetDistro() *Distro {
	if i.OS != OSLinux || i.Platform == "" {
		return nil
	}
	return &Distro{
		ID:      i.Platform,
		Family:  i.Family,
		Version: i.Version,
	}
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool { return i.OS == OSLinux }

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool { return i.OS == OSMacOS }

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool { return i.OS == OSWindows }

// IsX64 returns true if the architecture is 64-bit x86.
func (i *Info) IsX64() bool { return i.Arch == "x64" }

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool { return i.Arch == "arm64" }

// IsAppleSilicon returns true if running on Apple Silicon (macOS + arm64).
func (i *Info) IsAppleSilicon() bool {
	return i.IsMacOS() && i.IsARM64()
}

// String renders the pair the way diagnostics print it, e.g. "linux/x64".
func (i *Info) String() string {
	return i.OS + "/" + i.Arch
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
