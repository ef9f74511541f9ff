package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/provision/internal/provision"
)

func newEnsureCmd(a *app) *cobra.Command {
	var (
		force  bool
		asJSON bool
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Install the executable if missing and print its path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reporter provision.Reporter
			if !quiet {
				reporter = provision.ReporterFunc(func(e provision.Event) {
					if e.State == provision.StateFailed || e.Message == "" {
						return
					}
					fmt.Fprintf(a.stderr, "==> %s: %s\n", e.State, e.Message)
				})
			}

			p, err := a.provisioner(cmd.Context(), force, reporter)
			if err != nil {
				return err
			}

			res, err := p.Ensure(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(struct {
					Path     string `json:"path"`
					Cached   bool   `json:"cached"`
					Override bool   `json:"override"`
					Tag      string `json:"tag,omitempty"`
					Asset    string `json:"asset,omitempty"`
					RunID    string `json:"run_id,omitempty"`
				}{res.Path, res.Cached, res.Override, res.Tag, res.Asset, res.RunID}, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal result: %w", err)
				}
				fmt.Fprintln(a.stdout, string(out))
				return nil
			}

			fmt.Fprintln(a.stdout, res.Path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "reinstall even when the executable is present")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not report progress")
	return cmd
}
