package binary

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Format is an archive container/compression pair.
type Format string

const (
	FormatUnknown Format = ""
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGz   Format = "tar.gz"
	FormatTarBz2  Format = "tar.bz2"
	FormatTarXz   Format = "tar.xz"
)

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZip   = []byte("PK\x03\x04")
	magicUstar = []byte("ustar")
)

// Extractor handles archive extraction
type Extractor struct{}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// DetectFormat sniffs the archive format from the first bytes of the file.
// Old tar files without a ustar header are recognized by a ".tar" suffix.
func DetectFormat(archivePath string) (Format, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicZip):
		return FormatZip, nil
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(head, magicBzip2):
		return FormatTarBz2, nil
	case bytes.HasPrefix(head, magicXz):
		return FormatTarXz, nil
	case len(head) >= 262 && bytes.Equal(head[257:262], magicUstar):
		return FormatTar, nil
	case strings.HasSuffix(strings.ToLower(archivePath), ".tar"):
		return FormatTar, nil
	}
	return FormatUnknown, nil
}

// Extract unpacks archivePath into destDir. Errors are *ExtractError.
func (e *Extractor) Extract(archivePath, destDir string) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return &ExtractError{Archive: archivePath, Err: fmt.Errorf("open archive: %w", err)}
	}
	if format == FormatUnknown {
		return &ExtractError{Archive: archivePath, Err: errors.New("unrecognized archive format")}
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return &ExtractError{Archive: archivePath, Err: fmt.Errorf("create dest dir: %w", err)}
	}
	// Containment checks compare symlink-free paths.
	destDir, err = filepath.EvalSymlinks(destDir)
	if err != nil {
		return &ExtractError{Archive: archivePath, Err: fmt.Errorf("resolve dest dir: %w", err)}
	}

	if format == FormatZip {
		err = e.extractZip(archivePath, destDir)
	} else {
		err = e.extractTarFile(archivePath, format, destDir)
	}
	if err != nil {
		return &ExtractError{Archive: archivePath, Err: err}
	}
	return nil
}

func (e *Extractor) extractTarFile(archivePath string, format Format, destDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	var r io.Reader = bufio.NewReader(archiveFile)
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatTarBz2:
		r = bzip2.NewReader(r)
	case FormatTarXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return fmt.Errorf("create xz reader: %w", err)
		}
		r = xzr
	}

	return e.extractTar(tar.NewReader(r), destDir)
}

func (e *Extractor) extractTar(tarReader *tar.Reader, destDir string) error {
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		if err := checkParent(destDir, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if err := writeFile(target, tarReader, os.FileMode(header.Mode)); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := makeSymlink(destDir, target, header.Linkname); err != nil {
				return err
			}

		case tar.TypeLink:
			if err := makeHardLink(destDir, target, header.Linkname); err != nil {
				return err
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}
}

func (e *Extractor) extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if err := checkParent(destDir, target); err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case mode&os.ModeSymlink != 0:
			link, err := readZipEntry(f)
			if err != nil {
				return err
			}
			if err := makeSymlink(destDir, target, string(link)); err != nil {
				return err
			}

		default:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open zip entry %s: %w", f.Name, err)
			}
			err = writeFile(target, rc, mode)
			rc.Close()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// writeFile copies r into path, creating parent directories. Only the
// permission bits of mode are kept; a zero mode becomes 0644. A symlink
// already at path is replaced, never written through.
func writeFile(path string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("replace symlink %s: %w", path, err)
		}
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}

	outFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}

	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("write file %s: %w", path, err)
	}

	return outFile.Close()
}

// makeSymlink creates target -> link after checking the link resolves
// inside root. The link is judged from the real location of its parent, and
// once created it must not resolve outside root through earlier links.
func makeSymlink(root, target, link string) error {
	illegal := fmt.Errorf("illegal symlink %s -> %s", rel(root, target), link)
	if filepath.IsAbs(link) {
		return illegal
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil || !within(root, filepath.Join(parent, link)) {
		return illegal
	}

	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	// A dangling link is kept; writes never follow links.
	if resolved, err := filepath.EvalSymlinks(target); err == nil && !within(root, resolved) {
		_ = os.Remove(target)
		return illegal
	}
	return nil
}

// makeHardLink links target to the regular file source names inside root.
func makeHardLink(root, target, source string) error {
	src, err := safeJoin(root, source)
	if err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("hard link %s: %w", rel(root, target), err)
	}
	info, err := os.Lstat(resolved)
	if err != nil || !within(root, resolved) || !info.Mode().IsRegular() {
		return fmt.Errorf("illegal hard link %s -> %s", rel(root, target), source)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if err := os.Link(resolved, target); err != nil {
		return fmt.Errorf("create hard link %s: %w", target, err)
	}
	return nil
}

// checkParent rejects path when the deepest existing directory above it
// resolves outside root. root must be free of symlinks.
func checkParent(root, path string) error {
	if path == root {
		return nil
	}
	dir := filepath.Dir(path)
	for dir != root && within(root, dir) {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil || !within(root, resolved) {
		return fmt.Errorf("illegal file path: %s leaves the destination through a symlink", rel(root, path))
	}
	return nil
}

// safeJoin joins name onto root and rejects results outside root.
func safeJoin(root, name string) (string, error) {
	cleanRoot := filepath.Clean(root)
	target := filepath.Join(cleanRoot, name)

	if !within(cleanRoot, target) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

// within reports whether the clean path is root or lies below it.
func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

func rel(root, path string) string {
	r, err := filepath.Rel(filepath.Clean(root), path)
	if err != nil {
		return path
	}
	return r
}
