// Package config loads vfsmuxd's runtime configuration using
// github.com/spf13/viper, the ambient-stack dependency this tree
// carries even though the teacher never had a config layer of its own:
// provider mounts, per-mount capability overrides, the remote bridge's
// listen address, log level, and the participant hook timeout.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/worldiety/vfsmux/capability"
)

// Mount describes one provider to register at startup.
type Mount struct {
	Scheme string `mapstructure:"scheme"`
	Kind   string `mapstructure:"kind"` // "localfs" or "memfs"
	Root   string `mapstructure:"root"` // localfs only

	// Readonly, when set, adds the Readonly capability bit to what the
	// mount's provider advertises (see CapabilityOverride), e.g. forcing
	// a localfs mount read-only regardless of what the OS would allow.
	Readonly bool `mapstructure:"readonly"`
}

// Config is vfsmuxd's fully resolved configuration.
type Config struct {
	Mounts             []Mount       `mapstructure:"mounts"`
	RemoteListenAddr   string        `mapstructure:"remoteListenAddr"`
	LogLevel           string        `mapstructure:"logLevel"`
	ParticipantTimeout time.Duration `mapstructure:"participantTimeout"`
}

// Defaults used when a key is absent from the config file/environment.
func Defaults() Config {
	return Config{
		LogLevel:           "info",
		ParticipantTimeout: 5 * time.Second,
		RemoteListenAddr:   "127.0.0.1:9321",
	}
}

// Load reads configuration from path (if non-empty), environment
// variables prefixed VFSMUX_, and falls back to Defaults for anything
// unset. Mirrors the spf13/viper usage rclone vendors: file > env >
// default.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VFSMUX")
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault("logLevel", def.LogLevel)
	v.SetDefault("participantTimeout", def.ParticipantTimeout)
	v.SetDefault("remoteListenAddr", def.RemoteListenAddr)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}
	return cfg, nil
}

// CapabilityOverride returns the capability bits m.Readonly forces on,
// applied on top of whatever the underlying provider naturally reports.
func (m Mount) CapabilityOverride() capability.Capability {
	if m.Readonly {
		return capability.Readonly
	}
	return 0
}
