package cmd

import (
	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/uri"
)

var rmRecursive bool

var rmCmd = &cobra.Command{
	Use:   "rm <uri>",
	Short: "Delete a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService()
		if err != nil {
			return err
		}
		return svc.Delete(cobraCmd.Context(), uri.Parse(args[0]), rmRecursive)
	},
}

func init() {
	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "delete a non-empty directory and its contents")
	rootCmd.AddCommand(rmCmd)
}
