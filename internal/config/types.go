package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
)

// Settings is the content of provision.lua. Zero values mean "use the
// default".
type Settings struct {
	// StorageRoot is where the executable is installed.
	StorageRoot string `json:"storage_root,omitempty"`

	// Repo is the "owner/name" release catalog project.
	Repo string `json:"repo,omitempty"`
	// Tool is the executable base name.
	Tool string `json:"tool,omitempty"`
	// Executable bypasses provisioning and is used as-is.
	Executable string `json:"executable,omitempty"`

	APIURL    string `json:"api_url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Token     string `json:"token,omitempty"`

	// RedirectBudget is nil when unset. Zero disables redirects.
	RedirectBudget *int `json:"redirect_budget,omitempty"`
	// Timeout bounds each download.
	Timeout time.Duration `json:"timeout,omitempty"`

	Platform PlatformOverride `json:"platform,omitempty"`
	Verify   Verify           `json:"verify,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// PlatformOverride replaces the detected os/arch when picking assets.
type PlatformOverride struct {
	OS   string `json:"os,omitempty"`
	Arch string `json:"arch,omitempty"`
}

// IsSet reports whether any field is overridden.
func (p PlatformOverride) IsSet() bool {
	return p.OS != "" || p.Arch != ""
}

// Apply returns host with the overridden fields replaced.
func (p PlatformOverride) Apply(host platform.Info) platform.Info {
	if p.OS != "" {
		host.OS = p.OS
	}
	if p.Arch != "" {
		host.Arch = p.Arch
	}
	return host
}

// Verify enables integrity checks of downloads.
type Verify struct {
	Checksums bool   `json:"checksums,omitempty"`
	Keyring   string `json:"keyring,omitempty"`
}

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// repoPattern matches GitHub owner/name slugs.
var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// toolPattern matches executable base names.
var toolPattern = regexp.MustCompile(`^[A-Za-z0-9_.+-]+$`)

// Validate performs basic validation on Settings.
func (s *Settings) Validate() error {
	if s.Repo != "" && !repoPattern.MatchString(s.Repo) {
		return &ValidationError{Field: luaFieldRepo, Message: fmt.Sprintf("expected owner/name, got %q", s.Repo)}
	}

	if s.Tool != "" {
		if !toolPattern.MatchString(s.Tool) || s.Tool == "." || s.Tool == ".." {
			return &ValidationError{Field: luaFieldTool, Message: fmt.Sprintf("invalid executable name %q", s.Tool)}
		}
	}

	if s.APIURL != "" {
		if err := validateHTTPURL(s.APIURL); err != nil {
			return &ValidationError{Field: luaFieldAPIURL, Message: err.Error()}
		}
	}

	if s.RedirectBudget != nil && (*s.RedirectBudget < 0 || *s.RedirectBudget > MaxRedirectBudget) {
		return &ValidationError{
			Field:   luaFieldRedirects,
			Message: fmt.Sprintf("must be between 0 and %d, got %d", MaxRedirectBudget, *s.RedirectBudget),
		}
	}

	if s.Timeout < 0 || s.Timeout > MaxTimeoutSeconds*time.Second {
		return &ValidationError{
			Field:   luaFieldTimeout,
			Message: fmt.Sprintf("must be between 0 and %d seconds", MaxTimeoutSeconds),
		}
	}

	if s.Platform.OS != "" {
		arch := s.Platform.Arch
		if arch == "" {
			arch = "x64"
		}
		if _, err := platform.Resolve(s.Platform.OS, arch, "tool"); err != nil {
			return &ValidationError{Field: luaFieldPlatform + "." + luaFieldOS, Message: err.Error()}
		}
	}

	if !logLevels[strings.ToLower(s.LogLevel)] {
		return &ValidationError{Field: luaFieldLogLevel, Message: fmt.Sprintf("unknown level %q", s.LogLevel)}
	}

	return nil
}

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "settings validation failed for " + e.Field + ": " + e.Message
	}
	return "settings validation failed: " + e.Message
}

// validateHTTPURL accepts absolute http and https URLs.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", raw)
	}
	return nil
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
