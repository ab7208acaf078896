package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/uri"
)

var catCmd = &cobra.Command{
	Use:   "cat <uri>",
	Short: "Print a file's contents to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService()
		if err != nil {
			return err
		}
		data, err := svc.ReadFile(cobraCmd.Context(), uri.Parse(args[0]))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
