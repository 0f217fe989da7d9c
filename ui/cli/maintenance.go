// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/remote"
)

// runDBMaintenance is swapped in tests.
var runDBMaintenance = db.RunDBMaintenance

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "maintain",
		Short:       "Run engine-specific maintenance (VACUUM, OPTIMIZE)",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runDBMaintenance(a.cfg.Database.Type, a.cfg.Database.Dsn); err != nil {
				return apperr.Wrap(apperr.ErrInternal, err, "%s", i18n.T("db.maintenance_failed"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(i18n.T("db.maintenance_done")))
			return nil
		},
	})
	return cmd
}

func newHostKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostkey",
		Short: "Manage trusted device host keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "trust <device-id>",
		Short: "Fetch and trust a device's current host key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseID(args[0], "device")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := a.principal(ctx)
			if err != nil {
				return err
			}
			if !p.Unrestricted() {
				return apperr.New(apperr.ErrPermission, "%s may not trust host keys", p)
			}
			dev, err := a.store.GetDevice(ctx, deviceID)
			if err != nil {
				return apperr.Wrap(apperr.ErrInternal, err, "load device %d", deviceID)
			}
			if dev == nil {
				return apperr.New(apperr.ErrNotFound, "device %d", deviceID)
			}
			key, err := remote.TrustHost(ctx, a.store, dev.Addr(), a.dialer.Config().ConnectTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("hostkey.trusted", dev.Addr(), key))
			return nil
		},
	})
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "languages",
		Short:       "List available message languages",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoStore: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			av := i18n.GetAvailableLocales()
			for _, tag := range i18n.Languages() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", tag, av[tag])
			}
		},
	}
}
