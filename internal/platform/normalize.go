package platform

import (
	"strings"
)

// familyMap maps distribution names to their canonical family names.
var familyMap = map[string]string{
	"debian":   FamilyDebian,
	"ubuntu":   FamilyDebian, // gopsutil might return ubuntu as family
	"rhel":     FamilyRHEL,
	"centos":   FamilyRHEL,
	"rocky":    FamilyRHEL,
	"fedora":   FamilyFedora,
	"suse":     FamilySUSE,
	"opensuse": FamilySUSE,
	"arch":     FamilyArch,
	"manjaro":  FamilyArch,
	"alpine":   FamilyAlpine,
	"gentoo":   FamilyGentoo,
}

// goArchToHost maps GOARCH values to the host architecture vocabulary.
var goArchToHost = map[string]string{
	"amd64": "x64",
	"386":   "ia32",
	"arm64": "arm64",
	"arm":   "arm",
}

// osAliases folds the spellings callers use for an OS onto Info.OS values.
var osAliases = map[string]string{
	"linux":   OSLinux,
	"darwin":  OSMacOS,
	"macos":   OSMacOS,
	"windows": OSWindows,
	"win32":   OSWindows,
}

// hostArch converts a GOARCH value to host vocabulary. Unknown values pass
// through unchanged (e.g. "riscv64", "ppc64le").
func hostArch(goarch string) string {
	if arch, ok := goArchToHost[goarch]; ok {
		return arch
	}
	return goarch
}

// normalizeOS folds an OS name onto one of the OS constants. The second
// return is false for operating systems outside the supported set.
func normalizeOS(name string) (string, bool) {
	canonical, ok := osAliases[normalizePlatform(name)]
	return canonical, ok
}

// normalizePlatform converts platform IDs to lowercase for consistency.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily maps distribution family strings to canonical family names.
func mapFamily(family string) string {
	if canonical, ok := familyMap[normalizePlatform(family)]; ok {
		return canonical
	}
	return FamilyUnknown
}
