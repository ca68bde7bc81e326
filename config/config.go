// Package config loads the meshctl configuration using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rigado/blemesh"
)

// Config maps to the `mesh:` root key in YAML. Environment variables use the
// MESH_ prefix, e.g. MESH_NETWORK_TTL.
type Config struct {
	StateFile string          `mapstructure:"state_file"`
	Log       LogConfig       `mapstructure:"log"`
	Transport TransportConfig `mapstructure:"transport"`
	Network   NetworkConfig   `mapstructure:"network"`
	Identity  IdentityConfig  `mapstructure:"identity"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text | json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TransportConfig describes the proxy channel.
type TransportConfig struct {
	MTU               int  `mapstructure:"mtu"`
	WriteWithResponse bool `mapstructure:"write_with_response"`
}

type NetworkConfig struct {
	Provisioner       string        `mapstructure:"provisioner"`
	AppKeyName        string        `mapstructure:"app_key_name"`
	TTL               int           `mapstructure:"ttl"`
	ReassemblyTimeout time.Duration `mapstructure:"reassembly_timeout"`
}

// IdentityConfig bounds how long a node is expected to advertise its identity
// after provisioning.
type IdentityConfig struct {
	CandidateTTL time.Duration `mapstructure:"candidate_ttl"`
}

type configRoot struct {
	Mesh Config `mapstructure:"mesh"`
}

// Load reads path, applies environment overrides and defaults. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "mesh.network.ttl" -> env "MESH_NETWORK_TTL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Mesh

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mesh.state_file", "mesh.json")

	v.SetDefault("mesh.log.level", "info")
	v.SetDefault("mesh.log.format", "text")
	v.SetDefault("mesh.log.file", "")
	v.SetDefault("mesh.log.max_size_mb", 10)
	v.SetDefault("mesh.log.max_backups", 3)
	v.SetDefault("mesh.log.max_age_days", 30)
	v.SetDefault("mesh.log.compress", false)

	v.SetDefault("mesh.transport.mtu", 20)
	v.SetDefault("mesh.transport.write_with_response", false)

	v.SetDefault("mesh.network.provisioner", "0x0001")
	v.SetDefault("mesh.network.app_key_name", "primary")
	v.SetDefault("mesh.network.ttl", mesh.DefaultTTL)
	v.SetDefault("mesh.network.reassembly_timeout", mesh.DefaultReassemblyTimeout)

	v.SetDefault("mesh.identity.candidate_ttl", time.Minute)
}

// Validate checks values that the engine would otherwise reject late.
func (cfg *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// the proxy PDU header plus at least one payload byte
	if cfg.Transport.MTU < 2 {
		return fmt.Errorf("transport mtu %d too small", cfg.Transport.MTU)
	}

	if cfg.StateFile == "" {
		return fmt.Errorf("state_file must be set")
	}

	a, err := mesh.ParseAddress(cfg.Network.Provisioner)
	if err != nil {
		return err
	}
	if !a.IsUnicast() {
		return fmt.Errorf("provisioner %v is not a unicast address", a)
	}

	if cfg.Network.TTL < 0 || cfg.Network.TTL == 1 || cfg.Network.TTL > 0x7F {
		return fmt.Errorf("invalid ttl %d", cfg.Network.TTL)
	}
	if cfg.Network.ReassemblyTimeout <= 0 {
		return fmt.Errorf("reassembly_timeout must be positive")
	}
	if cfg.Identity.CandidateTTL <= 0 {
		return fmt.Errorf("identity candidate_ttl must be positive")
	}

	return nil
}

// ProvisionerAddress returns the parsed provisioner address.
func (cfg *Config) ProvisionerAddress() mesh.Address {
	a, _ := mesh.ParseAddress(cfg.Network.Provisioner)
	return a
}

func (cfg *Config) LogOptions() mesh.LogOptions {
	return mesh.LogOptions{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}

// EngineOptions returns the options for network layers and configurators.
func (cfg *Config) EngineOptions() []mesh.Option {
	return []mesh.Option{
		mesh.OptTTL(uint8(cfg.Network.TTL)),
		mesh.OptReassemblyTimeout(cfg.Network.ReassemblyTimeout),
		mesh.OptWriteWithResponse(cfg.Transport.WriteWithResponse),
	}
}
