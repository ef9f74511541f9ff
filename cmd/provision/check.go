package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the installed release with the latest stable release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.provisioner(cmd.Context(), false, nil)
			if err != nil {
				return err
			}

			res, err := p.Check(cmd.Context())
			if err != nil {
				return err
			}

			installed := "none"
			if res.Installed != nil {
				installed = res.Installed.Tag
			}
			fmt.Fprintf(a.stdout, "installed: %s\n", installed)
			fmt.Fprintf(a.stdout, "latest:    %s\n", res.Latest)
			if res.UpdateAvailable {
				fmt.Fprintln(a.stdout, "update available, run: provision ensure --force")
			} else {
				fmt.Fprintln(a.stdout, "up to date")
			}
			return nil
		},
	}
}
