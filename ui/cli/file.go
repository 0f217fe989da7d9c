// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/model"
)

func newFileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Read and write files on a session's device",
	}
	cmd.AddCommand(newFileReadCmd(a), newFileWriteCmd(a))
	return cmd
}

func newFileReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <session-id> <path>",
		Short: "Print a remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session")
			if err != nil {
				return err
			}
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			content, err := a.svc.ReadFile(cmd.Context(), p, id, args[1])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}
}

func newFileWriteCmd(a *app) *cobra.Command {
	var kind, from string
	cmd := &cobra.Command{
		Use:   "write <session-id> <path>",
		Short: "Create, modify or delete a remote file",
		Long: `Writes content read from --from (or stdin) to the remote path.
With --kind delete the file is removed and no content is read.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "session")
			if err != nil {
				return err
			}
			k, err := model.ParseEditKind(kind)
			if err != nil {
				return err
			}
			var content string
			if k != model.EditDelete {
				var data []byte
				if from != "" && from != "-" {
					data, err = os.ReadFile(from)
				} else {
					data, err = io.ReadAll(cmd.InOrStdin())
				}
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				content = string(data)
			}
			p, err := a.principal(cmd.Context())
			if err != nil {
				return err
			}
			ack, err := a.svc.WriteFile(cmd.Context(), p, id, args[1], content, k)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("file.written", ack.Kind, ack.Path))
			if !ack.AuditPersisted {
				warn(cmd.ErrOrStderr(), i18n.T("exec.audit_not_persisted", auditWarning(ack.AuditError)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.EditModify), "Edit kind: create, modify or delete")
	cmd.Flags().StringVar(&from, "from", "", "Read content from this local file instead of stdin")
	return cmd
}
