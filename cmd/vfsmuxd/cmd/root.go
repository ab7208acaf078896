package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/capability"
	"github.com/worldiety/vfsmux/fileservice"
	"github.com/worldiety/vfsmux/internal/config"
	"github.com/worldiety/vfsmux/provider"
	"github.com/worldiety/vfsmux/provider/localfs"
	"github.com/worldiety/vfsmux/provider/memfs"
	"github.com/worldiety/vfsmux/registry"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vfsmuxd",
	Short: "Mount and serve heterogeneous storage providers behind one virtual filesystem",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "path to a vfsmuxd config file")
}

// Execute runs the root cobra command.
func Execute() error {
	return rootCmd.Execute()
}

// buildService loads configPath and mounts every configured provider
// into a fresh registry.Registry and fileservice.Service, the shared
// setup every debug subcommand (ls/cat/cp/mv/rm/watch) and serve needs
// before it can do anything.
func buildService() (*fileservice.Service, *registry.Registry, *logrus.Entry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	entry := logrus.NewEntry(log)

	reg := registry.New(entry)
	for _, m := range cfg.Mounts {
		if err := mountOne(reg, m); err != nil {
			return nil, nil, nil, fmt.Errorf("mounting %s: %w", m.Scheme, err)
		}
	}

	svc := fileservice.New(reg, entry)
	svc.Participants().SetTimeout(cfg.ParticipantTimeout)

	return svc, reg, entry, nil
}

func mountOne(reg *registry.Registry, m config.Mount) error {
	switch m.Kind {
	case "localfs":
		p := localfs.New(m.Root, nil)
		var bp provider.BaseProvider = p
		if override := m.CapabilityOverride(); override != 0 {
			bp = readonlyLocalfs{Provider: p, override: override}
		}
		_, err := reg.Register(m.Scheme, bp)
		return err
	case "memfs":
		p := memfs.New()
		var bp provider.BaseProvider = p
		if override := m.CapabilityOverride(); override != 0 {
			bp = readonlyMemfs{Provider: p, override: override}
		}
		_, err := reg.Register(m.Scheme, bp)
		return err
	default:
		return fmt.Errorf("unknown provider kind %q", m.Kind)
	}
}

// readonlyLocalfs and readonlyMemfs embed the concrete provider (not
// the BaseProvider interface) so every optional capability the
// underlying provider implements - WholeFileProvider, RandomAccessProvider,
// FolderCopyProvider, WatchProvider - stays promoted and type-assertable
// exactly as before; only Capabilities() is shadowed to force the
// Readonly bit on, applying config.Mount.CapabilityOverride.
type readonlyLocalfs struct {
	*localfs.Provider
	override capability.Capability
}

func (w readonlyLocalfs) Capabilities() capability.Set {
	return w.Provider.Capabilities().With(w.override)
}

type readonlyMemfs struct {
	*memfs.Provider
	override capability.Capability
}

func (w readonlyMemfs) Capabilities() capability.Set {
	return w.Provider.Capabilities().With(w.override)
}
