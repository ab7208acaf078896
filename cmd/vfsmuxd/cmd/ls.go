package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/uri"
)

var lsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls <uri>",
	Short: "List a directory's immediate children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService()
		if err != nil {
			return err
		}
		u := uri.Parse(args[0])
		entries, err := svc.ReadDirectory(cobraCmd.Context(), u)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 2, 1, ' ', 0)
		defer w.Flush()
		if lsLong {
			fmt.Fprintln(w, "type\tsize\tname")
		}
		for _, e := range entries {
			if lsLong {
				fmt.Fprintf(w, "%v\t%d\t%s\n", e.Stat.Type, e.Stat.Size, e.Name)
			} else {
				fmt.Fprintln(w, e.Name)
			}
		}
		return nil
	},
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "long format listing")
	rootCmd.AddCommand(lsCmd)
}
