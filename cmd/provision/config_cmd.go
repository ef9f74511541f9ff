package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/provision/internal/binary"
	"github.com/ZebulonRouseFrantzich/provision/internal/config"
	"github.com/ZebulonRouseFrantzich/provision/internal/provision"
	"github.com/ZebulonRouseFrantzich/provision/internal/release"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage provision.lua",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented provision.lua with the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.v.GetString(keyConfig)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			s, err := a.settings()
			if err != nil {
				return err
			}

			content := config.NewGenerator().Generate(explicitSettings(a, s), defaultSettings())

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}

			fmt.Fprintf(a.stdout, "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			if s.Token != "" {
				s.Token = "[REDACTED]"
			}

			view := struct {
				*config.Settings
				Timeout string `json:"timeout"`
			}{s, s.Timeout.String()}
			out, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal settings: %w", err)
			}
			fmt.Fprintln(a.stdout, string(out))
			return nil
		},
	}
}

// explicitSettings keeps only the values that differ from the built-in
// defaults, so a generated file does not pin them.
func explicitSettings(a *app, s *config.Settings) *config.Settings {
	d := defaultSettings()
	out := *s
	out.Token = ""

	if out.Repo == d.Repo {
		out.Repo = ""
	}
	if out.Tool == d.Tool {
		out.Tool = ""
	}
	if !a.v.IsSet(keyStorageRoot) {
		out.StorageRoot = ""
	}
	if out.RedirectBudget != nil && *out.RedirectBudget == *d.RedirectBudget {
		out.RedirectBudget = nil
	}
	if out.Timeout == d.Timeout {
		out.Timeout = 0
	}
	if out.LogLevel == d.LogLevel {
		out.LogLevel = ""
	}
	return &out
}

func defaultSettings() config.Settings {
	budget := binary.DefaultMaxRedirects
	return config.Settings{
		Repo:           provision.DefaultRepo,
		Tool:           provision.DefaultTool,
		APIURL:         release.DefaultAPIURL,
		UserAgent:      release.DefaultUserAgent,
		RedirectBudget: &budget,
		Timeout:        binary.DefaultTimeout,
		LogLevel:       "info",
	}
}
