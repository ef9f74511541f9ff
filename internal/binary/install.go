package binary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
)

// BinDir is the directory, relative to the storage root, holding the executable.
const BinDir = "bin"

// StagingPrefix starts the name of the temporary unpack directory.
const StagingPrefix = ".staging-"

// Installer unpacks a fetched archive into a storage root.
type Installer struct {
	extractor *Extractor
	goos      string
	reserved  map[string]bool
}

// NewInstaller creates an installer that unpacks with extractor. Top-level
// archive entries named in reserved are never moved into the storage root,
// which keeps the caller's own files there intact.
func NewInstaller(extractor *Extractor, reserved ...string) *Installer {
	if extractor == nil {
		extractor = NewExtractor()
	}
	r := make(map[string]bool, len(reserved))
	for _, name := range reserved {
		r[name] = true
	}
	return &Installer{extractor: extractor, goos: runtime.GOOS, reserved: r}
}

// ExecutablePath returns <storageRoot>/bin/<binary>.
func ExecutablePath(storageRoot string, v platform.Vocabulary) string {
	return filepath.Join(storageRoot, BinDir, v.BinaryName)
}

// Install unpacks archivePath and returns the absolute path of the installed
// executable.
//
// The archive is unpacked into a staging directory inside storageRoot. Only
// after bin/<binary> is found there and marked executable are the staged
// top-level entries moved over their counterparts in storageRoot, bin last.
// The archive is removed once unpacking has been attempted, whatever the
// outcome. Nothing is left in storageRoot on failure.
func (i *Installer) Install(archivePath, storageRoot string, v platform.Vocabulary) (string, error) {
	staging, err := os.MkdirTemp(storageRoot, StagingPrefix)
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	extractErr := i.extractor.Extract(archivePath, staging)
	// A leftover archive is overwritten by the next download.
	_ = os.Remove(archivePath)
	if extractErr != nil {
		return "", extractErr
	}

	finalPath := ExecutablePath(storageRoot, v)
	staged := ExecutablePath(staging, v)

	info, err := os.Stat(staged)
	if err != nil || !info.Mode().IsRegular() {
		return "", &MissingExecutableError{Path: finalPath}
	}

	if i.goos != platform.OSWindows {
		if err := SetExecutable(staged); err != nil {
			return "", &PermissionError{Path: finalPath, Err: err}
		}
	}

	if err := promote(staging, storageRoot, i.reserved); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(finalPath)
	if err != nil {
		return finalPath, nil
	}
	return abs, nil
}

// promote moves every top-level entry of staging into root, replacing what
// was there. Reserved names stay behind in staging. bin is moved last so the
// executable only appears once its siblings (resource directories) are in
// place.
func promote(staging, root string, reserved map[string]bool) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("read staging dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if reserved[e.Name()] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.SliceStable(names, func(a, b int) bool {
		return names[a] != BinDir && names[b] == BinDir
	})

	for _, name := range names {
		dst := filepath.Join(root, name)
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("replace %s: %w", dst, err)
		}
		if err := os.Rename(filepath.Join(staging, name), dst); err != nil {
			return fmt.Errorf("move %s into place: %w", name, err)
		}
	}
	return nil
}

// IsInstalled reports whether path is an existing regular file. Executable
// bits are not checked: Windows has none, and a present binary is treated as
// installed.
func IsInstalled(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat binary: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	// 0755 (rwxr-xr-x)
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
