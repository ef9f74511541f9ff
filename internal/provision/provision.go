package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/provision/internal/binary"
	"github.com/ZebulonRouseFrantzich/provision/internal/lock"
	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
	"github.com/ZebulonRouseFrantzich/provision/internal/release"
)

const (
	// DefaultRepo is the project whose releases carry the server.
	DefaultRepo = "clice-io/clice"
	// DefaultTool is the executable's base name.
	DefaultTool = "clice"

	verifyPrefix = ".verify-"
)

// VerifyOptions enables integrity checks of downloaded archives. Both are off
// by default.
type VerifyOptions struct {
	// Checksums requires a SHA256 entry for the asset in a published
	// checksum file.
	Checksums bool
	// Keyring, when set, requires a detached OpenPGP signature for the asset
	// made by a key in this keyring file.
	Keyring string
}

// Enabled reports whether any verification is requested.
func (v VerifyOptions) Enabled() bool {
	return v.Checksums || v.Keyring != ""
}

// Options configures a Provisioner.
type Options struct {
	// StorageRoot is the writable directory the executable is installed under.
	StorageRoot string

	// Repo is the "owner/name" catalog project. Defaults to DefaultRepo.
	Repo string
	// Tool is the executable's base name. Defaults to DefaultTool.
	Tool string
	// Executable, when set, is returned verbatim by Ensure. No catalog or
	// filesystem access happens.
	Executable string

	// Host overrides detection. Detector is consulted when Host is nil, and
	// platform.NewDetector() when both are nil.
	Host     *platform.Info
	Detector platform.Detector

	APIURL    string
	UserAgent string
	Token     string

	// HTTPClient is shared by catalog queries and downloads. When nil, one
	// client per concern is built with Timeout.
	HTTPClient *http.Client
	// Timeout bounds each download when HTTPClient is nil. Defaults to
	// binary.DefaultTimeout.
	Timeout time.Duration
	// MaxRedirects is the download redirect budget. Zero means
	// binary.DefaultMaxRedirects; negative disables redirects.
	MaxRedirects int

	// Force skips the cache check and reinstalls.
	Force bool

	Verify VerifyOptions

	Logger   Logger
	Reporter Reporter
	// Clock stamps install records. Defaults to RealClock.
	Clock Clock
}

// Result describes a successful run.
type Result struct {
	// Path is the absolute path of the executable.
	Path string
	// Cached is true when the executable was already installed.
	Cached bool
	// Override is true when Path came from Options.Executable.
	Override bool
	// Tag and Asset name the installed release. Empty on a cache hit.
	Tag   string
	Asset string
	RunID string
}

// CheckResult compares the installed release with the catalog.
type CheckResult struct {
	Installed       *Record
	Latest          string
	UpdateAvailable bool
}

// Provisioner runs the provisioning pipeline for one storage root. The host
// vocabulary is resolved once, at construction.
type Provisioner struct {
	opts      Options
	host      *platform.Info
	vocab     platform.Vocabulary
	vocabErr  error
	catalog   *release.Client
	fetcher   *binary.Fetcher
	installer *binary.Installer
	verifier  *binary.Verifier
	logger    Logger
	reporter  Reporter
}

// New validates opts, detects the host and builds a Provisioner.
//
// An unsupported host is not an error here: Ensure reports it as a
// KindUnsupportedPlatform failure so callers see every run failure the
// same way.
func New(opts Options) (*Provisioner, error) {
	if opts.Executable == "" && opts.StorageRoot == "" {
		return nil, errors.New("storage root is required")
	}
	if opts.Repo == "" {
		opts.Repo = DefaultRepo
	}
	if opts.Tool == "" {
		opts.Tool = DefaultTool
	}
	if opts.Logger == nil {
		opts.Logger = defaultLogger()
	}
	if opts.Reporter == nil {
		opts.Reporter = noopReporter{}
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}

	p := &Provisioner{
		opts:     opts,
		logger:   opts.Logger,
		reporter: opts.Reporter,
	}
	if opts.Executable != "" {
		return p, nil
	}

	root, err := filepath.Abs(opts.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	p.opts.StorageRoot = root

	p.host = opts.Host
	if p.host == nil {
		detector := opts.Detector
		if detector == nil {
			detector = platform.NewDetector()
		}
		p.host, err = detector.Detect(context.Background())
		if err != nil {
			return nil, fmt.Errorf("detect platform: %w", err)
		}
	}
	p.vocab, p.vocabErr = platform.Resolve(p.host.OS, p.host.Arch, opts.Tool)

	catalogHTTP, downloadHTTP := opts.HTTPClient, opts.HTTPClient
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = binary.DefaultTimeout
		}
		catalogHTTP = &http.Client{Timeout: release.DefaultTimeout}
		downloadHTTP = &http.Client{Timeout: timeout}
	}

	p.catalog, err = release.NewClient(release.Options{
		Repo:       opts.Repo,
		APIURL:     opts.APIURL,
		UserAgent:  opts.UserAgent,
		Token:      opts.Token,
		HTTPClient: catalogHTTP,
	})
	if err != nil {
		return nil, err
	}

	p.fetcher = binary.NewFetcher(downloadHTTP, opts.UserAgent)
	switch {
	case opts.MaxRedirects > 0:
		p.fetcher.MaxRedirects = opts.MaxRedirects
	case opts.MaxRedirects < 0:
		p.fetcher.MaxRedirects = 0
	}
	p.installer = binary.NewInstaller(binary.NewExtractor(), reservedNames...)
	p.verifier = binary.NewVerifier(opts.Verify.Keyring)

	return p, nil
}

// Host returns the detected host, or nil for an executable override.
func (p *Provisioner) Host() *platform.Info {
	return p.host
}

// Vocabulary returns the resolved asset vocabulary and the resolution error
// for unsupported hosts.
func (p *Provisioner) Vocabulary() (platform.Vocabulary, error) {
	return p.vocab, p.vocabErr
}

// ExpectedPath returns where the executable lives once installed, without
// touching the network or the filesystem.
func (p *Provisioner) ExpectedPath() (string, error) {
	if p.opts.Executable != "" {
		return p.opts.Executable, nil
	}
	if p.vocabErr != nil {
		return "", p.vocabErr
	}
	return binary.ExecutablePath(p.opts.StorageRoot, p.vocab), nil
}

// Installed returns the install record, or nil when none exists.
func (p *Provisioner) Installed() (*Record, error) {
	if p.opts.Executable != "" {
		return nil, nil
	}
	return readRecord(p.opts.StorageRoot)
}

// Ensure makes sure the executable is installed and returns its path. Errors
// are *Failure.
func (p *Provisioner) Ensure(ctx context.Context) (*Result, error) {
	if p.opts.Executable != "" {
		p.logger.Info("using configured executable", "path", p.opts.Executable)
		p.report(Event{State: StateDone, Message: "using configured executable " + p.opts.Executable})
		return &Result{Path: p.opts.Executable, Override: true}, nil
	}

	r := &run{p: p, id: uuid.NewString()}
	return r.execute(ctx)
}

// Check compares the installed release tag with the catalog's latest release.
// Unlike Ensure it always queries the catalog.
func (p *Provisioner) Check(ctx context.Context) (*CheckResult, error) {
	if p.opts.Executable != "" {
		return nil, errors.New("check is not available for a configured executable")
	}

	rec, err := p.Installed()
	if err != nil {
		return nil, err
	}

	rel, err := p.catalog.FetchLatestRelease(ctx)
	if err != nil {
		f := &Failure{Kind: classify(err), State: StateFetchRelease, Err: err}
		p.logger.Error("release check failed", f.Fields()...)
		return nil, f
	}

	res := &CheckResult{Installed: rec, Latest: rel.TagName, UpdateAvailable: true}
	if rec != nil {
		res.UpdateAvailable = release.Newer(rec.Tag, rel.TagName)
	}
	p.logger.Debug("release check", "latest", rel.TagName, "update_available", res.UpdateAvailable)
	return res, nil
}

func (p *Provisioner) report(e Event) {
	p.reporter.Report(e)
}

// EnsureServerBinary provisions the default server under storageRoot with
// default settings. It returns the executable path and true, or "" and false
// after logging the failure.
func EnsureServerBinary(ctx context.Context, storageRoot string, logger Logger) (string, bool) {
	if logger == nil {
		logger = defaultLogger()
	}

	p, err := New(Options{StorageRoot: storageRoot, Logger: logger})
	if err != nil {
		logger.Error("provisioning setup failed", "error", err.Error())
		return "", false
	}

	res, err := p.Ensure(ctx)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			logger.Error(f.UserMessage())
		}
		return "", false
	}
	return res.Path, true
}

// run is the state of one Ensure call.
type run struct {
	p  *Provisioner
	id string
}

func (r *run) enter(state State, msg string, kv ...interface{}) {
	r.p.logger.Debug(msg, append([]interface{}{"state", string(state), "run_id", r.id}, kv...)...)
	r.p.report(Event{RunID: r.id, State: state, Message: msg})
}

func (r *run) fail(state State, err error) error {
	f := &Failure{Kind: classify(err), State: state, RunID: r.id, Err: err}
	r.p.logger.Error("provisioning failed", f.Fields()...)
	r.p.report(Event{RunID: r.id, State: StateFailed, Message: f.UserMessage(), Err: f})
	return f
}

func (r *run) done(res *Result) (*Result, error) {
	res.RunID = r.id
	msg := "installed " + res.Path
	if res.Cached {
		msg = "found existing binary at " + res.Path
	}
	r.p.logger.Info(msg, "run_id", r.id, "cached", res.Cached, "tag", res.Tag)
	r.p.report(Event{RunID: r.id, State: StateDone, Message: msg})
	return res, nil
}

// cached returns the executable path when it is already installed.
func (r *run) cached() (string, bool, error) {
	if r.p.opts.Force || r.p.vocabErr != nil {
		return "", false, nil
	}
	path := binary.ExecutablePath(r.p.opts.StorageRoot, r.p.vocab)
	ok, err := binary.IsInstalled(path)
	if err != nil || !ok {
		return "", false, err
	}
	return path, true, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	p := r.p
	root := p.opts.StorageRoot

	r.enter(StateCheckCache, "checking for installed binary", "storage_root", root)
	if path, ok, err := r.cached(); err != nil {
		return nil, r.fail(StateCheckCache, err)
	} else if ok {
		return r.done(&Result{Path: path, Cached: true})
	}

	r.enter(StateResolvePlatform, "resolving platform", "os", p.host.OS, "arch", p.host.Arch)
	if p.vocabErr != nil {
		return nil, r.fail(StateResolvePlatform, p.vocabErr)
	}
	p.logger.Info("resolved platform",
		"run_id", r.id, "platform", p.vocab.String(), "binary", p.vocab.BinaryName, "host", p.host.String())

	r.enter(StateAcquireLock, "locking storage root", "storage_root", root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, r.fail(StateAcquireLock, fmt.Errorf("create storage root: %w", err))
	}

	l, err := lock.Acquire(ctx, root, r.id)
	if err != nil {
		if errors.Is(err, lock.ErrLockExists) {
			if h, herr := lock.ReadHolder(root); herr == nil {
				p.logger.Warn("storage root is locked", "run_id", r.id, "holder_pid", h.PID, "holder_run_id", h.RunID)
			}
		}
		return nil, r.fail(StateAcquireLock, err)
	}
	defer func() {
		if err := l.Release(); err != nil {
			p.logger.Warn("release lock", "run_id", r.id, "error", err.Error())
		}
	}()

	// Another run may have installed while we waited for the lock.
	if path, ok, err := r.cached(); err == nil && ok {
		return r.done(&Result{Path: path, Cached: true})
	}

	r.enter(StateFetchRelease, "fetching release info", "repo", p.catalog.Repo())
	rel, err := p.catalog.FetchLatestRelease(ctx)
	if err != nil {
		return nil, r.fail(StateFetchRelease, err)
	}
	p.logger.Info("found release", "run_id", r.id, "tag", rel.TagName, "prerelease", rel.Prerelease)

	r.enter(StateSelectAsset, "selecting asset", "tag", rel.TagName, "platform", p.vocab.String())
	asset, err := release.SelectAsset(rel, p.vocab)
	if err != nil {
		return nil, r.fail(StateSelectAsset, err)
	}
	if err := checkAssetName(rel, asset); err != nil {
		return nil, r.fail(StateSelectAsset, err)
	}

	archivePath := filepath.Join(root, asset.Name)
	r.enter(StateDownload, "downloading "+asset.Name, "url", asset.DownloadURL, "path", archivePath)
	if err := p.fetcher.Fetch(ctx, asset.DownloadURL, archivePath); err != nil {
		return nil, r.fail(StateDownload, err)
	}

	if p.opts.Verify.Enabled() {
		r.enter(StateVerify, "verifying "+asset.Name)
		if err := r.verify(ctx, rel, asset, archivePath); err != nil {
			os.Remove(archivePath)
			return nil, r.fail(StateVerify, err)
		}
	}

	r.enter(StateInstall, "extracting "+asset.Name, "path", archivePath)
	path, err := p.installer.Install(archivePath, root, p.vocab)
	if err != nil {
		return nil, r.fail(StateInstall, err)
	}

	rec := &Record{Tag: rel.TagName, Asset: asset.Name, RunID: r.id, InstalledAt: p.opts.Clock.Now().UTC()}
	if err := writeRecord(root, rec); err != nil {
		// The executable is in place; only Check loses information.
		p.logger.Warn("write install record", "run_id", r.id, "error", err.Error())
	}

	return r.done(&Result{Path: path, Tag: rel.TagName, Asset: asset.Name})
}

// verify fetches the checksum and signature assets published beside asset
// into a scratch directory and checks archivePath against them.
func (r *run) verify(ctx context.Context, rel *release.Release, asset *release.Asset, archivePath string) error {
	p := r.p

	scratch, err := os.MkdirTemp(p.opts.StorageRoot, verifyPrefix)
	if err != nil {
		return fmt.Errorf("create verify dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if p.opts.Verify.Checksums {
		sums := findSidecar(rel, asset.Name, []string{".sha256"}, binary.ChecksumAssetNames)
		if sums == nil {
			return &binary.VerificationError{
				Method: binary.VerificationSHA256,
				Path:   archivePath,
				Err:    fmt.Errorf("release %s publishes no checksum for %s", rel.TagName, asset.Name),
			}
		}
		sumsPath := filepath.Join(scratch, "checksums")
		if err := p.fetcher.Fetch(ctx, sums.DownloadURL, sumsPath); err != nil {
			return err
		}
		if err := p.verifier.VerifyChecksum(archivePath, sumsPath, asset.Name); err != nil {
			return err
		}
		p.logger.Info("checksum verified", "run_id", r.id, "asset", asset.Name, "source", sums.Name)
	}

	if p.verifier.HasKeyring() {
		sig := findSidecar(rel, asset.Name, binary.SignatureSuffixes, nil)
		if sig == nil {
			return &binary.VerificationError{
				Method: binary.VerificationGPG,
				Path:   archivePath,
				Err:    fmt.Errorf("release %s publishes no signature for %s", rel.TagName, asset.Name),
			}
		}
		sigPath := filepath.Join(scratch, "signature")
		if err := p.fetcher.Fetch(ctx, sig.DownloadURL, sigPath); err != nil {
			return err
		}
		if err := p.verifier.VerifySignature(archivePath, sigPath); err != nil {
			return err
		}
		p.logger.Info("signature verified", "run_id", r.id, "asset", asset.Name, "source", sig.Name)
	}

	return nil
}

// reservedNames are storage-root entries owned by the pipeline. Neither a
// download nor an archive entry may take their place.
var reservedNames = []string{lock.FileName, RecordFileName}

// checkAssetName rejects asset names that would not land as a plain file
// directly inside the storage root.
func checkAssetName(rel *release.Release, asset *release.Asset) error {
	name := asset.Name
	unsafe := name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name ||
		name == binary.BinDir ||
		strings.HasPrefix(name, binary.StagingPrefix) || strings.HasPrefix(name, verifyPrefix)
	for _, reserved := range reservedNames {
		unsafe = unsafe || name == reserved
	}
	if unsafe {
		return &release.UnsafeAssetNameError{Tag: rel.TagName, Name: name}
	}
	return nil
}

// findSidecar looks for <asset><suffix> first, then for any of the shared names.
func findSidecar(rel *release.Release, assetName string, suffixes, shared []string) *release.Asset {
	for _, s := range suffixes {
		if a := release.FindAsset(rel, assetName+s); a != nil {
			return a
		}
	}
	for _, name := range shared {
		if a := release.FindAsset(rel, name); a != nil {
			return a
		}
	}
	return nil
}
