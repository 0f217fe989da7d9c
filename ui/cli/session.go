// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/model"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open, close and inspect sessions",
	}
	cmd.AddCommand(newSessionOpenCmd(a), newSessionCloseCmd(a), newSessionListCmd(a), newSessionShowCmd(a))
	return cmd
}

func newSessionOpenCmd(a *app) *cobra.Command {
	var info model.ClientInfo
	cmd := &cobra.Command{
		Use:   "open <device-id>",
		Short: "Open a session on a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := parseID(args[0], "device")
			if err != nil {
				return err
			}
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			if info.UserAgent == "" {
				info.UserAgent = "gatekeeper-cli/" + version
			}
			s, err := a.svc.OpenSession(cmd.Context(), p, deviceID, info)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("session.opened", s.ID, s.DeviceID))
			return nil
		},
	}
	cmd.Flags().StringVar(&info.IPAddress, "ip", "", "Client IP address to record")
	cmd.Flags().StringVar(&info.UserAgent, "user-agent", "", "Client user agent to record")
	return cmd
}

func newSessionCloseCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session with a terminal status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session")
			if err != nil {
				return err
			}
			st, err := model.ParseSessionStatus(status)
			if err != nil {
				return err
			}
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			s, err := a.svc.CloseSession(cmd.Context(), p, id, st)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("session.closed", s.ID, sessionStatus(s.Status)))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(model.SessionCompleted), "Terminal status: completed, terminated or failed")
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	var (
		filter model.SessionFilter
		page   model.Page
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			sessions, total, err := a.svc.ListSessions(cmd.Context(), p, filter, page)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(w, i18n.T("session.none"))
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					formatID(s.ID), formatID(s.UserID), formatID(s.DeviceID),
					sessionStatus(s.Status), formatTime(s.StartTime), formatTimePtr(s.EndTime),
				})
			}
			renderTable(w, []string{"ID", "USER", "DEVICE", "STATUS", "STARTED", "ENDED"}, rows)
			printTotal(w, len(sessions), total, page)
			return nil
		},
	}
	cmd.Flags().BoolVar(&filter.ActiveOnly, "active", false, "Only active sessions")
	cmd.Flags().Int64Var(&filter.OwnerID, "owner", 0, "Only sessions owned by this user id")
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "Maximum rows (0 uses the configured default)")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "Rows to skip")
	return cmd
}

func newSessionShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session")
			if err != nil {
				return err
			}
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			s, err := a.svc.GetSession(cmd.Context(), p, id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:            %d\n", s.ID)
			fmt.Fprintf(w, "User:          %d\n", s.UserID)
			fmt.Fprintf(w, "Device:        %d\n", s.DeviceID)
			fmt.Fprintf(w, "Status:        %s\n", sessionStatus(s.Status))
			fmt.Fprintf(w, "Started:       %s\n", formatTime(s.StartTime))
			fmt.Fprintf(w, "Ended:         %s\n", formatTimePtr(s.EndTime))
			if s.TerminatedBy != 0 {
				fmt.Fprintf(w, "Terminated by: %d\n", s.TerminatedBy)
			}
			if s.IPAddress != "" {
				fmt.Fprintf(w, "IP address:    %s\n", s.IPAddress)
			}
			if s.UserAgent != "" {
				fmt.Fprintf(w, "User agent:    %s\n", s.UserAgent)
			}
			return nil
		},
	}
}
