// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/model"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify and export the audit trail",
	}
	cmd.AddCommand(newAuditVerifyCmd(a), newAuditExportCmd(a), newAuditInspectCmd())
	return cmd
}

func newAuditVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <session-id>",
		Short: "Check a session's command log hash chain",
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
			n, err := a.svc.VerifyAuditChain(cmd.Context(), p, id)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render(i18n.T("audit.chain_broken", id)))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(i18n.T("audit.chain_ok", id, n)))
			return nil
		},
	}
}

func newAuditExportCmd(a *app) *cobra.Command {
	var filter model.AuditFilter
	cmd := &cobra.Command{
		Use:   "export <file|->",
		Short: "Write the audit trail as zstd-compressed JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if args[0] != "-" {
				f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			stats, err := a.svc.ExportAudit(cmd.Context(), p, filter, w)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("audit.exported", stats.Commands, stats.FileEdits))
			return nil
		},
	}
	auditFilterFlags(cmd, &filter, nil)
	return cmd
}

func newAuditInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "inspect <file>",
		Short:       "Summarize an audit export file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationNoStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			records, err := core.ReadExport(f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, r := range records {
				switch {
				case r.Command != nil:
					fmt.Fprintf(w, "command  #%d session %d exit %d  %s\n", r.Command.ID, r.Command.SessionID, r.Command.ExitCode, r.Command.CommandText)
				case r.FileEdit != nil:
					fmt.Fprintf(w, "file     #%d session %d %-6s %s\n", r.FileEdit.ID, r.FileEdit.SessionID, r.FileEdit.EditKind, r.FileEdit.FilePath)
				}
			}
			fmt.Fprintln(w, mutedStyle.Render(i18n.T("audit.inspected", len(records))))
			return nil
		},
	}
}
