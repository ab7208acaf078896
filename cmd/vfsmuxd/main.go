// Command vfsmuxd runs the virtual filesystem multiplexer: it mounts
// the providers named in its config into a registry.Registry, and
// either serves them over the remote bridge or lets a caller poke at
// them directly through the debug subcommands (ls, cat, cp, mv, rm,
// watch). Subcommand layout mirrors the one-file-per-verb style of
// shadeutil's cmd/shadeutil tree, ported onto cobra.
package main

import (
	"fmt"
	"os"

	"github.com/worldiety/vfsmux/cmd/vfsmuxd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
