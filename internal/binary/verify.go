package binary

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// ChecksumAssetNames are the release asset names searched for a checksum
// file covering every asset. "<asset>.sha256" is tried before these.
var ChecksumAssetNames = []string{"checksums.txt", "SHA256SUMS", "sha256sums.txt"}

// SignatureSuffixes are appended to an asset name to find its detached signature.
var SignatureSuffixes = []string{".sig", ".asc"}

// Verifier checks downloaded archives against published checksums and
// signatures.
type Verifier struct {
	keyringPath string
}

// NewVerifier creates a verifier. keyringPath may be empty, in which case
// signature checks fail and only checksums can be verified.
func NewVerifier(keyringPath string) *Verifier {
	return &Verifier{keyringPath: keyringPath}
}

// HasKeyring reports whether a keyring was configured.
func (v *Verifier) HasKeyring() bool {
	return v.keyringPath != ""
}

// VerifyChecksum compares the SHA256 of archivePath with the entry for
// assetName in checksumPath. checksumPath may be a multi-entry sums file
// ("<hex>  <name>") or a single-hash file.
func (v *Verifier) VerifyChecksum(archivePath, checksumPath, assetName string) error {
	actualChecksum, err := calculateSHA256(archivePath)
	if err != nil {
		return &VerificationError{Method: VerificationSHA256, Path: archivePath, Err: fmt.Errorf("calculate checksum: %w", err)}
	}

	expectedChecksum, err := findChecksum(checksumPath, assetName)
	if err != nil {
		return &VerificationError{Method: VerificationSHA256, Path: archivePath, Err: fmt.Errorf("find checksum: %w", err)}
	}

	// Compare checksums (case-insensitive)
	if !strings.EqualFold(actualChecksum, expectedChecksum) {
		return &VerificationError{
			Method: VerificationSHA256,
			Path:   archivePath,
			Err:    fmt.Errorf("checksum mismatch: actual %s, expected %s", actualChecksum, expectedChecksum),
		}
	}
	return nil
}

// VerifySignature checks an armored or binary OpenPGP detached signature of
// archivePath against the configured keyring.
func (v *Verifier) VerifySignature(archivePath, signaturePath string) error {
	fail := func(err error) error {
		return &VerificationError{Method: VerificationGPG, Path: archivePath, Err: err}
	}

	keyring, err := v.loadKeyring()
	if err != nil {
		return fail(fmt.Errorf("load keyring: %w", err))
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fail(fmt.Errorf("open archive: %w", err))
	}
	defer archiveFile.Close()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		return fail(fmt.Errorf("open signature: %w", err))
	}
	defer sigFile.Close()

	// Try armored first
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, archiveFile, sigFile, nil)
	if err != nil {
		if _, serr := archiveFile.Seek(0, io.SeekStart); serr != nil {
			return fail(serr)
		}
		if _, serr := sigFile.Seek(0, io.SeekStart); serr != nil {
			return fail(serr)
		}
		_, err = openpgp.CheckDetachedSignature(keyring, archiveFile, sigFile, nil)
	}
	if err != nil {
		return fail(fmt.Errorf("verify signature: %w", err))
	}
	return nil
}

// loadKeyring reads an armored or binary keyring.
func (v *Verifier) loadKeyring() (openpgp.EntityList, error) {
	if v.keyringPath == "" {
		return nil, errors.New("no keyring configured")
	}

	keyringFile, err := os.Open(v.keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		// Try reading as non-armored keyring
		if _, serr := keyringFile.Seek(0, io.SeekStart); serr != nil {
			return nil, serr
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, errors.New("keyring is empty")
	}
	return keyring, nil
}

// calculateSHA256 calculates the SHA256 checksum of a file
func calculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// findChecksum finds the checksum for filename in a sums file
// ("abc123  name.tar.gz", optionally "*name" for binary mode). A file whose
// only content is a single hash is accepted as that hash.
func findChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	var lone string
	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		lines++
		if len(parts) == 1 {
			lone = parts[0]
			continue
		}

		name := strings.TrimPrefix(parts[1], "*")
		if name == filename || filepath.Base(name) == filename {
			return parts[0], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	if lines == 1 && lone != "" {
		return lone, nil
	}
	return "", fmt.Errorf("checksum not found for %s", filename)
}
