// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/model"
)

func newLogsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Review the command and file-edit audit logs",
	}
	cmd.AddCommand(newLogsCommandsCmd(a), newLogsEditsCmd(a))
	return cmd
}

func auditFilterFlags(cmd *cobra.Command, f *model.AuditFilter, p *model.Page) {
	cmd.Flags().Int64Var(&f.SessionID, "session", 0, "Only entries of this session")
	cmd.Flags().Int64Var(&f.UserID, "user", 0, "Only entries of this user id")
	cmd.Flags().Int64Var(&f.DeviceID, "device", 0, "Only entries on this device id")
	if p != nil {
		cmd.Flags().IntVar(&p.Limit, "limit", 0, "Maximum rows (0 uses the configured default)")
		cmd.Flags().IntVar(&p.Offset, "offset", 0, "Rows to skip")
	}
}

func oneLine(s string, n int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func newLogsCommandsCmd(a *app) *cobra.Command {
	var (
		filter     model.AuditFilter
		page       model.Page
		showOutput bool
		raw        bool
	)
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List executed commands, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			entries, total, err := a.svc.ListCommandLogs(cmd.Context(), p, filter, page)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, i18n.T("logs.none"))
				return nil
			}
			if showOutput {
				for _, e := range entries {
					output := e.Output
					if raw && e.OutputEscaped {
						output = model.UnescapeAuditText(output)
					}
					fmt.Fprintf(w, "#%d session %d: %s (exit %d)\n%s\n", e.ID, e.SessionID, e.CommandText, e.ExitCode, output)
				}
				printTotal(w, len(entries), total, page)
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					formatID(e.ID), formatID(e.SessionID), formatID(e.UserID), formatID(e.DeviceID),
					e.CommandText, strconv.Itoa(e.ExitCode), execStatus(e.Status),
					formatTime(e.ExecutedAt), oneLine(e.Output, 40),
				})
			}
			renderTable(w, []string{"ID", "SESSION", "USER", "DEVICE", "COMMAND", "EXIT", "STATUS", "EXECUTED", "OUTPUT"}, rows)
			printTotal(w, len(entries), total, page)
			return nil
		},
	}
	auditFilterFlags(cmd, &filter, &page)
	cmd.Flags().BoolVar(&showOutput, "output", false, "Print full command output instead of a table")
	cmd.Flags().BoolVar(&raw, "raw", false, "With --output, decode escaped binary output to the original bytes")
	return cmd
}

func newLogsEditsCmd(a *app) *cobra.Command {
	var (
		filter   model.AuditFilter
		page     model.Page
		showDiff bool
	)
	cmd := &cobra.Command{
		Use:   "edits",
		Short: "List recorded file edits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			edits, total, err := a.svc.ListFileEdits(cmd.Context(), p, filter, page)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(edits) == 0 {
				fmt.Fprintln(w, i18n.T("logs.none"))
				return nil
			}
			if showDiff {
				for _, e := range edits {
					fmt.Fprintf(w, "#%d session %d %s %s\n", e.ID, e.SessionID, e.EditKind, e.FilePath)
					fmt.Fprintln(w, e.Diff)
				}
				printTotal(w, len(edits), total, page)
				return nil
			}
			rows := make([][]string, 0, len(edits))
			for _, e := range edits {
				rows = append(rows, []string{
					formatID(e.ID), formatID(e.SessionID), formatID(e.UserID), formatID(e.CommandLogID),
					string(e.EditKind), e.FilePath, formatTime(e.EditFinishedAt),
				})
			}
			renderTable(w, []string{"ID", "SESSION", "USER", "COMMAND", "KIND", "PATH", "FINISHED"}, rows)
			printTotal(w, len(edits), total, page)
			return nil
		},
	}
	auditFilterFlags(cmd, &filter, &page)
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print unified diffs")
	return cmd
}
