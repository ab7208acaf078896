package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/worldiety/vfsmux/internal/config"
	"github.com/worldiety/vfsmux/remote"
	"github.com/worldiety/vfsmux/uri"
)

var serveScheme string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve one configured provider over the remote bridge so another vfsmuxd can mount it",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		_, reg, log, err := buildService()
		if err != nil {
			return err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if serveScheme == "" {
			if len(cfg.Mounts) != 1 {
				return fmt.Errorf("serve: --scheme is required when more than one provider is mounted")
			}
			serveScheme = cfg.Mounts[0].Scheme
		}

		p, err := reg.Resolve(cobraCmd.Context(), uri.URI{Scheme: serveScheme, Path: "/"})
		if err != nil {
			return fmt.Errorf("resolving scheme %q: %w", serveScheme, err)
		}

		ln, err := net.Listen("tcp", cfg.RemoteListenAddr)
		if err != nil {
			return err
		}
		defer ln.Close()
		log.WithField("addr", cfg.RemoteListenAddr).WithField("scheme", serveScheme).Info("vfsmuxd listening")

		srv := remote.NewServer(p, log)
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.WithError(err).Warn("accept failed")
				continue
			}
			go func() {
				if err := srv.Serve(context.Background(), conn); err != nil {
					log.WithError(err).Debug("connection closed")
				}
			}()
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveScheme, "scheme", "", "which mounted scheme to serve (default: the only configured mount)")
	rootCmd.AddCommand(serveCmd)
}
