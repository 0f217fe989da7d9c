// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/i18n"
)

// stdinIsTerminal is swapped in tests.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func newExecCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "exec <session-id> -- <command...>",
		Short: "Execute an allowed command in a session",
		Long: `Runs the command on the session's device and records it in the
audit log. Commands marked as requiring confirmation prompt first
unless --yes is given.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session")
			if err != nil {
				return err
			}
			raw := strings.Join(args[1:], " ")
			ctx := cmd.Context()

			p, err := a.principal(ctx)
			if err != nil {
				return err
			}
			allowed, err := a.svc.AllowedCommands(ctx, p)
			if err != nil {
				return err
			}
			if c, ok := allowed.Lookup(raw); ok && c.RequiresConfirmation && !yes {
				if err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), raw); err != nil {
					return err
				}
			}

			res, err := a.svc.ExecuteCommand(ctx, p, id, raw)
			if res != nil {
				out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
				fmt.Fprint(out, res.Output)
				if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(errOut, mutedStyle.Render(i18n.T("exec.summary", res.Entry.ExitCode, res.Entry.DurationMs))+" "+execStatus(res.ExecutionOutcome))
				if res.FileEdit != nil {
					fmt.Fprintln(errOut, mutedStyle.Render(i18n.T("exec.file_edit", res.FileEdit.EditKind, res.FileEdit.FilePath)))
				}
				if !res.AuditPersisted {
					warn(errOut, i18n.T("exec.audit_not_persisted", auditWarning(res.AuditError)))
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// confirm asks on an interactive terminal and refuses otherwise.
func confirm(in io.Reader, out io.Writer, raw string) error {
	if !stdinIsTerminal() {
		return apperr.New(apperr.ErrValidation, "%s", i18n.T("exec.confirmation_required", raw))
	}
	fmt.Fprint(out, warningStyle.Render(i18n.T("exec.confirm_prompt", raw))+" ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "j", "ja":
		return nil
	}
	return apperr.New(apperr.ErrValidation, "%s", i18n.T("exec.aborted"))
}
