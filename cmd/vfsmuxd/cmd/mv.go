package cmd

import (
	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/uri"
)

var mvOverwrite bool

var mvCmd = &cobra.Command{
	Use:   "mv <src-uri> <dst-uri>",
	Short: "Move a file or directory, across providers if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService()
		if err != nil {
			return err
		}
		return svc.Move(cobraCmd.Context(), uri.Parse(args[0]), uri.Parse(args[1]), mvOverwrite)
	},
}

func init() {
	mvCmd.Flags().BoolVar(&mvOverwrite, "overwrite", false, "replace the destination if it already exists")
	rootCmd.AddCommand(mvCmd)
}
