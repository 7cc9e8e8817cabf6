package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCmdImages creates the `images` command tree for driving the container
// lane manually.
func newCmdImages(o *options) *cobra.Command {
	cmds := &cobra.Command{
		Use:   "images",
		Short: "Manage cached container images",
	}

	cmds.AddCommand(&cobra.Command{
		Use:   "build <name>",
		Short: "Build (or return the cached image for) one named container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, mgr, _, err := o.load()
			if err != nil {
				return err
			}
			ref, err := mgr.EnsureImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(ref)
			return nil
		},
	})

	cmds.AddCommand(&cobra.Command{
		Use:   "convert",
		Short: "Convert all cached archive images to the runtime format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, mgr, _, err := o.load()
			if err != nil {
				return err
			}
			return mgr.ConvertCachedArchives(cmd.Context())
		},
	})

	return cmds
}
