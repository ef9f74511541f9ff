package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/provision/internal/binary"
)

func newPathCmd(a *app) *cobra.Command {
	var installed bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print where the executable is installed",
		Long: `Print the path the executable is, or would be, installed at. No network
access happens. With --installed the command fails when the file is absent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.provisioner(cmd.Context(), false, nil)
			if err != nil {
				return err
			}

			path, err := p.ExpectedPath()
			if err != nil {
				return err
			}

			if installed {
				ok, err := binary.IsInstalled(path)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("not installed: %s", path)
				}
			}

			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&installed, "installed", false, "fail when the executable is not installed")
	return cmd
}
