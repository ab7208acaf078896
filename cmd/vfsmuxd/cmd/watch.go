package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/uri"
)

var watchRecursive bool

var watchCmd = &cobra.Command{
	Use:   "watch <uri>",
	Short: "Print change events for a resource until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService()
		if err != nil {
			return err
		}
		u := uri.Parse(args[0])

		session, err := svc.Watch(cobraCmd.Context(), u, watchRecursive)
		if err != nil {
			return err
		}
		defer session.Dispose()

		svc.OnDidChangeFile(func(ev provider.ChangeEvent) {
			if ev.Path.Equal(u) || (watchRecursive && u.IsEqualOrParent(ev.Path)) {
				fmt.Fprintf(os.Stdout, "%s %s\n", changeLabel(ev.Type), ev.Path.String())
			}
		})

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func changeLabel(t provider.ChangeType) string {
	switch t {
	case provider.Created:
		return "created"
	case provider.Changed:
		return "changed"
	case provider.Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func init() {
	watchCmd.Flags().BoolVarP(&watchRecursive, "recursive", "r", false, "also report events for descendants")
	rootCmd.AddCommand(watchCmd)
}
