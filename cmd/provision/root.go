package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZebulonRouseFrantzich/provision/internal/binary"
	"github.com/ZebulonRouseFrantzich/provision/internal/config"
	"github.com/ZebulonRouseFrantzich/provision/internal/logging"
	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
	"github.com/ZebulonRouseFrantzich/provision/internal/provision"
)

// envPrefix namespaces environment overrides, e.g. PROVISION_STORAGE_ROOT.
const envPrefix = "PROVISION"

// Setting keys shared by flags, environment and provision.lua.
const (
	keyConfig         = "config"
	keyStorageRoot    = "storage-root"
	keyRepo           = "repo"
	keyTool           = "tool"
	keyExecutable     = "executable"
	keyAPIURL         = "api-url"
	keyUserAgent      = "user-agent"
	keyToken          = "token"
	keyRedirectBudget = "redirect-budget"
	keyTimeout        = "timeout"
	keyOS             = "os"
	keyArch           = "arch"
	keyChecksums      = "verify-checksums"
	keyKeyring        = "keyring"
	keyLogLevel       = "log-level"
	keyLogFormat      = "log-format"
)

// app carries what every command needs. Tests construct it with fakes.
type app struct {
	v        *viper.Viper
	stdout   io.Writer
	stderr   io.Writer
	detector platform.Detector

	logger *logging.Logger
}

func newApp(stdout, stderr io.Writer) *app {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(keyToken, envPrefix+"_TOKEN", "GITHUB_TOKEN")

	return &app{v: v, stdout: stdout, stderr: stderr}
}

// newRootCmd builds the command tree.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "provision",
		Short: "Download and install a language server from its release catalog",
		Long: `provision makes sure a language server executable is installed under a
storage root, downloading the latest stable release for this platform when it
is missing.

Settings are read from provision.lua, then the environment (PROVISION_*),
then flags; later sources win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.String(keyConfig, defaultConfigPath(), "path to provision.lua")
	f.String(keyStorageRoot, "", "directory the executable is installed under")
	f.String(keyRepo, provision.DefaultRepo, "release catalog project (owner/name)")
	f.String(keyTool, provision.DefaultTool, "executable base name")
	f.String(keyExecutable, "", "use this executable instead of provisioning one")
	f.String(keyAPIURL, "", "release catalog API base URL")
	f.String(keyUserAgent, "", "User-Agent for catalog and download requests")
	f.Int(keyRedirectBudget, binary.DefaultMaxRedirects, "maximum redirects followed per download")
	f.Duration(keyTimeout, binary.DefaultTimeout, "download timeout")
	f.String(keyOS, "", "override the detected operating system")
	f.String(keyArch, "", "override the detected architecture")
	f.Bool(keyChecksums, false, "require a matching SHA256 checksum")
	f.String(keyKeyring, "", "require an OpenPGP signature made by a key in this keyring")
	f.String(keyLogLevel, "info", "log level (debug, info, warn, error)")
	f.String(keyLogFormat, logging.FormatAuto, "log format (console, json); default depends on the terminal")
	_ = a.v.BindPFlags(f)

	root.AddCommand(
		newEnsureCmd(a),
		newPathCmd(a),
		newCheckCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup layers provision.lua under the environment and flags, then builds
// the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.loadSettingsFile(cmd.Context()); err != nil {
		return err
	}

	logger, err := logging.New(a.stderr, logging.Options{
		Level:  a.v.GetString(keyLogLevel),
		Format: a.v.GetString(keyLogFormat),
	})
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// loadSettingsFile registers provision.lua values as viper defaults, so
// environment variables and changed flags take precedence over them.
func (a *app) loadSettingsFile(ctx context.Context) error {
	path := a.v.GetString(keyConfig)

	if data, err := os.ReadFile(path); err == nil {
		if warning := config.FormatSensitiveDataWarning(path, config.DetectSensitiveData(string(data))); warning != "" {
			fmt.Fprint(a.stderr, warning)
		}
	}

	s, err := config.Load(ctx, path, a.platformDetector())
	if err != nil {
		return fmt.Errorf("load %s: %s", path, config.FormatError(err, false))
	}

	strs := map[string]string{
		keyStorageRoot: s.StorageRoot,
		keyRepo:        s.Repo,
		keyTool:        s.Tool,
		keyExecutable:  s.Executable,
		keyAPIURL:      s.APIURL,
		keyUserAgent:   s.UserAgent,
		keyToken:       s.Token,
		keyOS:          s.Platform.OS,
		keyArch:        s.Platform.Arch,
		keyKeyring:     s.Verify.Keyring,
		keyLogLevel:    s.LogLevel,
	}
	for k, val := range strs {
		if val != "" {
			a.v.SetDefault(k, val)
		}
	}
	if s.RedirectBudget != nil {
		a.v.SetDefault(keyRedirectBudget, *s.RedirectBudget)
	}
	if s.Timeout > 0 {
		a.v.SetDefault(keyTimeout, s.Timeout)
	}
	if s.Verify.Checksums {
		a.v.SetDefault(keyChecksums, true)
	}
	return nil
}

func (a *app) platformDetector() platform.Detector {
	if a.detector != nil {
		return a.detector
	}
	return platform.NewDetector()
}

// settings returns the merged settings as a config.Settings value.
func (a *app) settings() (*config.Settings, error) {
	budget := a.v.GetInt(keyRedirectBudget)
	s := &config.Settings{
		StorageRoot:    a.v.GetString(keyStorageRoot),
		Repo:           a.v.GetString(keyRepo),
		Tool:           a.v.GetString(keyTool),
		Executable:     a.v.GetString(keyExecutable),
		APIURL:         a.v.GetString(keyAPIURL),
		UserAgent:      a.v.GetString(keyUserAgent),
		Token:          a.v.GetString(keyToken),
		RedirectBudget: &budget,
		Timeout:        a.v.GetDuration(keyTimeout),
		Platform:       config.PlatformOverride{OS: a.v.GetString(keyOS), Arch: a.v.GetString(keyArch)},
		Verify:         config.Verify{Checksums: a.v.GetBool(keyChecksums), Keyring: a.v.GetString(keyKeyring)},
		LogLevel:       a.v.GetString(keyLogLevel),
	}

	for _, p := range []*string{&s.StorageRoot, &s.Executable, &s.Verify.Keyring} {
		expanded, err := config.ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if s.StorageRoot == "" {
		root, err := defaultStorageRoot(s.Tool)
		if err != nil {
			return nil, err
		}
		s.StorageRoot = root
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// provisioner builds a Provisioner from the merged settings.
func (a *app) provisioner(ctx context.Context, force bool, reporter provision.Reporter) (*provision.Provisioner, error) {
	s, err := a.settings()
	if err != nil {
		return nil, err
	}

	opts := provision.Options{
		StorageRoot: s.StorageRoot,
		Repo:        s.Repo,
		Tool:        s.Tool,
		Executable:  s.Executable,
		APIURL:      s.APIURL,
		UserAgent:   s.UserAgent,
		Token:       s.Token,
		Timeout:     s.Timeout,
		Force:       force,
		Verify: provision.VerifyOptions{
			Checksums: s.Verify.Checksums,
			Keyring:   s.Verify.Keyring,
		},
		Logger:   a.logger,
		Reporter: reporter,
	}

	opts.MaxRedirects = *s.RedirectBudget
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = -1
	}

	if s.Executable == "" {
		host, err := a.platformDetector().Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("detect platform: %w", err)
		}
		overridden := s.Platform.Apply(*host)
		opts.Host = &overridden
	}

	return provision.New(opts)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return config.DefaultFileName
	}
	return filepath.Join(dir, "provision", config.DefaultFileName)
}

func defaultStorageRoot(tool string) (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("no storage root configured and no user cache directory: %w", err)
	}
	return filepath.Join(dir, "provision", tool), nil
}
