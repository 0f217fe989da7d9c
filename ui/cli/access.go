// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/i18n"
)

func newAccessAtCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "access-at <device-id>",
		Short: "List who held access to a device at a point in time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseID(args[0], "device")
			if err != nil {
				return err
			}
			t := time.Now()
			if at != "" {
				if t, err = time.Parse(time.RFC3339, at); err != nil {
					return apperr.Wrap(apperr.ErrValidation, err, "invalid --at timestamp")
				}
			}
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			grants, err := a.svc.AccessAt(cmd.Context(), p, deviceID, t.UTC())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(grants) == 0 {
				fmt.Fprintln(w, i18n.T("access.none", deviceID))
				return nil
			}
			rows := make([][]string, 0, len(grants))
			for _, g := range grants {
				rows = append(rows, []string{
					formatID(g.UserID), formatID(g.ProfileID), formatID(g.AssignmentID),
					formatTime(g.AssignedAt), formatTimePtr(g.RevokedAt),
				})
			}
			renderTable(w, []string{"USER", "PROFILE", "ASSIGNMENT", "ASSIGNED", "REVOKED"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 timestamp (default now)")
	return cmd
}
