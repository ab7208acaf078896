package cmd

import (
	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/uri"
)

var cpOverwrite bool

var cpCmd = &cobra.Command{
	Use:   "cp <src-uri> <dst-uri>",
	Short: "Copy a file or directory, across providers if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService()
		if err != nil {
			return err
		}
		return svc.Copy(cobraCmd.Context(), uri.Parse(args[0]), uri.Parse(args[1]), cpOverwrite)
	},
}

func init() {
	cpCmd.Flags().BoolVar(&cpOverwrite, "overwrite", false, "replace the destination if it already exists")
	rootCmd.AddCommand(cpCmd)
}
