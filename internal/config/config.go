// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads Gatekeeper settings from defaults, a yaml file,
// GATEKEEPER_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/remote"
)

const (
	appName   = "gatekeeper"
	envPrefix = "gatekeeper"
)

type Config struct {
	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`
	Language string `mapstructure:"language" yaml:"language"`
	Log      struct {
		Level string `mapstructure:"level" yaml:"level"`
	} `mapstructure:"log" yaml:"log"`
	SSH struct {
		ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
		CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
		HostKeyPolicy  string        `mapstructure:"host_key_policy" yaml:"host_key_policy"`
		KnownHostsFile string        `mapstructure:"known_hosts_file" yaml:"known_hosts_file,omitempty"`
	} `mapstructure:"ssh" yaml:"ssh"`
	Files struct {
		// ElevatedOnly limits file read/write to unrestricted principals.
		ElevatedOnly bool `mapstructure:"elevated_only" yaml:"elevated_only"`
	} `mapstructure:"files" yaml:"files"`
	List struct {
		DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
		MaxLimit     int `mapstructure:"max_limit" yaml:"max_limit"`
	} `mapstructure:"list" yaml:"list"`
}

// Defaults returns the built-in value for every known key.
func Defaults() map[string]any {
	rc := remote.DefaultConfig()
	return map[string]any{
		"database.type":        "sqlite",
		"database.dsn":         "./gatekeeper.db",
		"language":             "en",
		"log.level":            "info",
		"ssh.connect_timeout":  rc.ConnectTimeout,
		"ssh.command_timeout":  rc.CommandTimeout,
		"ssh.host_key_policy":  string(rc.HostKeyPolicy),
		"ssh.known_hosts_file": "",
		"files.elevated_only":  false,
		"list.default_limit":   20,
		"list.max_limit":       200,
	}
}

// GetConfigPath returns the full path of the user or system config file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Gatekeeper")
		default:
			configDir = "/etc/" + appName
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(dir, appName)
	}
	return filepath.Join(configDir, appName+".yaml"), nil
}

// LoadConfig resolves T from defaults, the first gatekeeper.yaml found (or
// the explicit file when configFile is set), the environment and the flags
// of cmd. A missing config file is reported as viper.ConfigFileNotFoundError
// alongside a fully populated T.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	if configFile != nil {
		v.SetConfigFile(*configFile)
	}
	if p, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	if p, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(p))
	}
	v.AddConfigPath(".")

	var notFound error
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return c, err
		}
		notFound = err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, notFound
}

// WriteConfigFile stores c at the user (or system) config path.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := GetConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	// 0600: the DSN may carry credentials.
	return os.WriteFile(path, data, 0o600)
}

// Remote converts the ssh section into transport settings.
func (c Config) Remote() (remote.Config, error) {
	policy, err := remote.ParseHostKeyPolicy(c.SSH.HostKeyPolicy)
	if err != nil {
		return remote.Config{}, err
	}
	return remote.Config{
		ConnectTimeout: c.SSH.ConnectTimeout,
		CommandTimeout: c.SSH.CommandTimeout,
		HostKeyPolicy:  policy,
		KnownHostsFile: c.SSH.KnownHostsFile,
	}, nil
}

// ServiceOptions converts the files and list sections.
func (c Config) ServiceOptions() core.Options {
	return core.Options{
		FilesElevatedOnly: c.Files.ElevatedOnly,
		DefaultLimit:      c.List.DefaultLimit,
		MaxLimit:          c.List.MaxLimit,
	}
}
