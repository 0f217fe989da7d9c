// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cfg "github.com/toeirei/gatekeeper/internal/config"
	"github.com/toeirei/gatekeeper/internal/remote"
)

// isolate points every config search location at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	t.Setenv("AppData", tmp)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return tmp
}

func TestLoadConfig_DefaultsWhenNoFile(t *testing.T) {
	isolate(t)

	c, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		t.Fatalf("expected ConfigFileNotFoundError, got %T %v", err, err)
	}
	if c.Database.Type != "sqlite" || c.Database.Dsn != "./gatekeeper.db" {
		t.Fatalf("unexpected database defaults: %+v", c.Database)
	}
	if c.SSH.ConnectTimeout != 10*time.Second || c.SSH.CommandTimeout != 5*time.Minute {
		t.Fatalf("unexpected ssh timeouts: %+v", c.SSH)
	}
	if c.List.DefaultLimit != 20 || c.List.MaxLimit != 200 {
		t.Fatalf("unexpected list limits: %+v", c.List)
	}
	if c.Files.ElevatedOnly {
		t.Fatalf("file operations should not be elevated-only by default")
	}
}

func TestLoadConfig_ReadsExplicitFile(t *testing.T) {
	tmp := isolate(t)
	content := "database:\n  type: postgres\n  dsn: postgresql://user@/db\nlanguage: de\n" +
		"ssh:\n  connect_timeout: 3s\n  command_timeout: 1m\n  host_key_policy: known_hosts\n" +
		"files:\n  elevated_only: true\n"
	file := filepath.Join(tmp, "custom.yaml")
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Database.Type != "postgres" || c.Language != "de" {
		t.Fatalf("file values not applied: %+v", c)
	}
	rc, err := c.Remote()
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}
	if rc.ConnectTimeout != 3*time.Second || rc.CommandTimeout != time.Minute || rc.HostKeyPolicy != remote.HostKeyKnownHosts {
		t.Fatalf("unexpected remote config: %+v", rc)
	}
	if !c.ServiceOptions().FilesElevatedOnly {
		t.Fatalf("expected elevated-only file operations")
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "custom.yaml")
	if err := os.WriteFile(file, []byte("database:\n  dsn: from-file.db\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("GATEKEEPER_DATABASE_DSN", "from-env.db")
	t.Setenv("GATEKEEPER_LIST_MAX_LIMIT", "50")

	c, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Database.Dsn != "from-env.db" {
		t.Fatalf("env should override file, got %q", c.Database.Dsn)
	}
	if c.List.MaxLimit != 50 {
		t.Fatalf("expected max limit 50, got %d", c.List.MaxLimit)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("GATEKEEPER_DATABASE_TYPE", "mysql")

	cmd := &cobra.Command{}
	cmd.Flags().String("database.type", "sqlite", "")
	if err := cmd.Flags().Set("database.type", "postgres"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	c, _ := cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), nil)
	if c.Database.Type != "postgres" {
		t.Fatalf("flag should win, got %q", c.Database.Type)
	}
}

func TestRemote_RejectsUnknownPolicy(t *testing.T) {
	var c cfg.Config
	c.SSH.HostKeyPolicy = "whatever"
	if _, err := c.Remote(); err == nil {
		t.Fatalf("expected error for unknown host key policy")
	}
}

func TestWriteConfigFile_CreatesFile(t *testing.T) {
	isolate(t)

	c := cfg.Config{}
	c.Database.Type = "sqlite"
	c.Database.Dsn = "./gatekeeper.db"
	c.Language = "en"
	c.SSH.HostKeyPolicy = "tofu"

	if err := cfg.WriteConfigFile(&c, false); err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	path, err := cfg.GetConfigPath(false)
	if err != nil {
		t.Fatalf("GetConfigPath failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file at %s, stat error: %v", path, err)
	}
	if info.Mode().Perm() != 0o600 && runtime.GOOS != "windows" {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Database.Dsn != "./gatekeeper.db" || loaded.SSH.HostKeyPolicy != "tofu" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
