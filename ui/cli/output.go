// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/model"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

// Exit statuses per error kind.
const (
	exitInternal       = 1
	exitValidation     = 2
	exitNotFound       = 3
	exitPermission     = 4
	exitAuthentication = 5
	exitTransport      = 6
	exitConflict       = 7
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch apperr.KindOf(err) {
	case nil:
		return 0
	case apperr.ErrValidation:
		return exitValidation
	case apperr.ErrNotFound:
		return exitNotFound
	case apperr.ErrPermission:
		return exitPermission
	case apperr.ErrAuthentication:
		return exitAuthentication
	case apperr.ErrTransport:
		return exitTransport
	case apperr.ErrConflict:
		return exitConflict
	}
	return exitInternal
}

func sessionStatus(s model.SessionStatus) string {
	switch s {
	case model.SessionActive:
		return activeStyle.Render(string(s))
	case model.SessionCompleted:
		return okStyle.Render(string(s))
	default:
		return failStyle.Render(string(s))
	}
}

func execStatus(s model.ExecStatus) string {
	if s == model.ExecSuccess {
		return okStyle.Render(string(s))
	}
	return failStyle.Render(string(s))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func formatID(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

func printTotal(w io.Writer, shown, total int, page model.Page) {
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d of %d (offset %d)", shown, total, page.Offset)))
}

func warn(w io.Writer, msg string) {
	fmt.Fprintln(w, warningStyle.Render(msg))
}

func auditWarning(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Msg != "" {
		return ae.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
