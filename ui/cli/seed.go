// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/security"
)

// Fixture is the yaml document accepted by `gatekeeper seed`. Entries
// reference each other by name.
type Fixture struct {
	Users        []FixtureUser        `yaml:"users"`
	Groups       []FixtureGroup       `yaml:"groups"`
	Devices      []FixtureDevice      `yaml:"devices"`
	CommandLists []FixtureCommandList `yaml:"command_lists"`
	Profiles     []FixtureProfile     `yaml:"profiles"`
	Assignments  []FixtureAssignment  `yaml:"assignments"`
}

type FixtureUser struct {
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
	Inactive bool   `yaml:"inactive"`
}

type FixtureGroup struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type FixtureDevice struct {
	Name       string `yaml:"name"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	AuthMethod string `yaml:"auth_method"`
	Password   string `yaml:"password"`
	// PrivateKeyFile is resolved relative to the fixture file.
	PrivateKeyFile string `yaml:"private_key_file"`
	Passphrase     string `yaml:"passphrase"`
	Group          string `yaml:"group"`
	Inactive       bool   `yaml:"inactive"`
}

type FixtureCommand struct {
	Text                 string `yaml:"text"`
	Description          string `yaml:"description"`
	Dangerous            bool   `yaml:"dangerous"`
	RequiresConfirmation bool   `yaml:"requires_confirmation"`
}

type FixtureCommandList struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Commands    []FixtureCommand `yaml:"commands"`
}

type FixtureProfile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Group       string `yaml:"group"`
	List        string `yaml:"list"`
}

type FixtureAssignment struct {
	User       string `yaml:"user"`
	Profile    string `yaml:"profile"`
	AssignedBy string `yaml:"assigned_by"`
}

// SeedCounts reports how many rows of each kind were inserted.
type SeedCounts struct {
	Users, Groups, Devices, Lists, Commands, Profiles, Assignments int
}

// LoadFixture parses a fixture file and reads any referenced key files.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, err, "parse fixture %s", path)
	}
	base := filepath.Dir(path)
	for i := range fx.Devices {
		d := &fx.Devices[i]
		if d.PrivateKeyFile != "" && !filepath.IsAbs(d.PrivateKeyFile) {
			d.PrivateKeyFile = filepath.Join(base, d.PrivateKeyFile)
		}
	}
	return &fx, nil
}

// ApplyFixture inserts fx in one transaction.
func ApplyFixture(ctx context.Context, bdb *bun.DB, fx *Fixture) (SeedCounts, error) {
	var counts SeedCounts
	err := db.WithTx(ctx, bdb, func(ctx context.Context, tx bun.Tx) error {
		counts = SeedCounts{}
		now := time.Now().UTC()
		users := map[string]int64{}
		groups := map[string]int64{}
		lists := map[string]int64{}
		profiles := map[string]int64{}

		for _, fu := range fx.Users {
			role, err := model.ParseRole(fu.Role)
			if err != nil {
				return fmt.Errorf("user %q: %w", fu.Username, err)
			}
			u := model.User{Username: fu.Username, Role: role, IsActive: !fu.Inactive, CreatedAt: now}
			if err := db.AddUserBun(ctx, tx, &u); err != nil {
				return fmt.Errorf("user %q: %w", fu.Username, err)
			}
			users[u.Username] = u.ID
			counts.Users++
		}

		for _, fg := range fx.Groups {
			g := model.DeviceGroup{Name: fg.Name, Description: fg.Description, IsActive: true}
			if err := db.AddDeviceGroupBun(ctx, tx, &g); err != nil {
				return fmt.Errorf("group %q: %w", fg.Name, err)
			}
			groups[g.Name] = g.ID
			counts.Groups++
		}

		for _, fd := range fx.Devices {
			d, err := fixtureDevice(fd, groups)
			if err != nil {
				return err
			}
			if err := db.AddDeviceBun(ctx, tx, &d); err != nil {
				return fmt.Errorf("device %q: %w", fd.Name, err)
			}
			counts.Devices++
		}

		for _, fl := range fx.CommandLists {
			l := model.CommandList{Name: fl.Name, Description: fl.Description, IsActive: true}
			if err := db.AddCommandListBun(ctx, tx, &l); err != nil {
				return fmt.Errorf("command list %q: %w", fl.Name, err)
			}
			lists[l.Name] = l.ID
			counts.Lists++
			for _, fc := range fl.Commands {
				c := model.Command{
					Text:                 fc.Text,
					Description:          fc.Description,
					IsDangerous:          fc.Dangerous,
					RequiresConfirmation: fc.RequiresConfirmation,
					ListID:               l.ID,
				}
				if err := db.AddCommandBun(ctx, tx, &c); err != nil {
					return fmt.Errorf("command %q: %w", fc.Text, err)
				}
				counts.Commands++
			}
		}

		for _, fp := range fx.Profiles {
			groupID, ok := groups[fp.Group]
			if !ok {
				return apperr.New(apperr.ErrValidation, "profile %q: unknown group %q", fp.Name, fp.Group)
			}
			listID, ok := lists[fp.List]
			if !ok {
				return apperr.New(apperr.ErrValidation, "profile %q: unknown command list %q", fp.Name, fp.List)
			}
			p := model.Profile{Name: fp.Name, Description: fp.Description, GroupID: groupID, ListID: listID, IsActive: true}
			if err := db.AddProfileBun(ctx, tx, &p); err != nil {
				return fmt.Errorf("profile %q: %w", fp.Name, err)
			}
			profiles[p.Name] = p.ID
			counts.Profiles++
		}

		for _, fa := range fx.Assignments {
			userID, ok := users[fa.User]
			if !ok {
				return apperr.New(apperr.ErrValidation, "assignment: unknown user %q", fa.User)
			}
			profileID, ok := profiles[fa.Profile]
			if !ok {
				return apperr.New(apperr.ErrValidation, "assignment: unknown profile %q", fa.Profile)
			}
			by := users[fa.AssignedBy]
			if _, err := db.AssignProfileBun(ctx, tx, userID, profileID, by, now); err != nil {
				return fmt.Errorf("assign %q to %q: %w", fa.Profile, fa.User, err)
			}
			counts.Assignments++
		}
		return nil
	})
	return counts, err
}

func fixtureDevice(fd FixtureDevice, groups map[string]int64) (model.Device, error) {
	method := model.AuthMethod(fd.AuthMethod)
	if method == "" {
		method = model.AuthPassword
	}
	if !method.Valid() {
		return model.Device{}, apperr.New(apperr.ErrValidation, "device %q: unknown auth method %q", fd.Name, fd.AuthMethod)
	}
	d := model.Device{
		Name:       fd.Name,
		Host:       fd.Host,
		Port:       fd.Port,
		Username:   fd.Username,
		AuthMethod: method,
		Password:   security.FromString(fd.Password),
		Passphrase: security.FromString(fd.Passphrase),
		IsActive:   !fd.Inactive,
	}
	if fd.PrivateKeyFile != "" {
		key, err := os.ReadFile(fd.PrivateKeyFile)
		if err != nil {
			return model.Device{}, fmt.Errorf("device %q: read private key: %w", fd.Name, err)
		}
		d.PrivateKey = security.FromBytes(key)
	}
	if fd.Group != "" {
		id, ok := groups[fd.Group]
		if !ok {
			return model.Device{}, apperr.New(apperr.ErrValidation, "device %q: unknown group %q", fd.Name, fd.Group)
		}
		d.GroupID = id
	}
	return d, nil
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load users, devices, command lists and profiles from a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := LoadFixture(args[0])
			if err != nil {
				return err
			}
			c, err := ApplyFixture(cmd.Context(), a.store.BunDB(), fx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("seed.done", map[string]any{
				"Users": c.Users, "Groups": c.Groups, "Devices": c.Devices,
				"Lists": c.Lists, "Commands": c.Commands, "Profiles": c.Profiles,
				"Assignments": c.Assignments,
			}))
			return nil
		},
	}
}
