// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/model"
)

// Export record types.
const (
	RecordCommand  = "command"
	RecordFileEdit = "file_edit"
)

// ExportRecord is one line of an audit export.
type ExportRecord struct {
	Type     string                  `json:"type"`
	Command  *model.CommandLogEntry  `json:"command,omitempty"`
	FileEdit *model.FileEditLogEntry `json:"file_edit,omitempty"`
}

// ExportStats counts what an export wrote.
type ExportStats struct {
	Commands  int
	FileEdits int
}

const exportPageSize = 500

// ExportAudit streams every command log and file edit entry matching f to
// w as zstd-compressed JSON lines, command entries first. Only
// unrestricted principals may export.
func (s *Service) ExportAudit(ctx context.Context, p Principal, f model.AuditFilter, w io.Writer) (ExportStats, error) {
	var stats ExportStats
	if !p.Unrestricted() {
		return stats, apperr.New(apperr.ErrPermission, "%s may not export the audit trail", p)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return stats, apperr.Wrap(apperr.ErrInternal, err, "create zstd writer")
	}
	enc := json.NewEncoder(zw)

	for offset := 0; ; offset += exportPageSize {
		page := model.Page{Limit: exportPageSize, Offset: offset}
		rows, _, err := s.store.ListCommandLogs(ctx, f, page)
		if err != nil {
			_ = zw.Close()
			return stats, apperr.Wrap(apperr.ErrInternal, err, "read command logs")
		}
		for i := range rows {
			if err := enc.Encode(ExportRecord{Type: RecordCommand, Command: &rows[i]}); err != nil {
				_ = zw.Close()
				return stats, apperr.Wrap(apperr.ErrInternal, err, "encode command log")
			}
			stats.Commands++
		}
		if len(rows) < exportPageSize {
			break
		}
	}

	for offset := 0; ; offset += exportPageSize {
		page := model.Page{Limit: exportPageSize, Offset: offset}
		rows, _, err := s.store.ListFileEdits(ctx, f, page)
		if err != nil {
			_ = zw.Close()
			return stats, apperr.Wrap(apperr.ErrInternal, err, "read file edits")
		}
		for i := range rows {
			if err := enc.Encode(ExportRecord{Type: RecordFileEdit, FileEdit: &rows[i]}); err != nil {
				_ = zw.Close()
				return stats, apperr.Wrap(apperr.ErrInternal, err, "encode file edit")
			}
			stats.FileEdits++
		}
		if len(rows) < exportPageSize {
			break
		}
	}

	if err := zw.Close(); err != nil {
		return stats, apperr.Wrap(apperr.ErrInternal, err, "finish zstd stream")
	}
	return stats, nil
}

// ReadExport decodes an audit export written by ExportAudit.
func ReadExport(r io.Reader) ([]ExportRecord, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var out []ExportRecord
	dec := json.NewDecoder(bufio.NewReader(zr))
	for {
		var rec ExportRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode export record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}
