// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package auditchain links command log entries of one session into a
// tamper-evident hash chain. Each entry hash covers the entry's recorded
// fields plus the hash of its predecessor, so editing or removing a row
// breaks every hash after it.
package auditchain

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/toeirei/gatekeeper/internal/model"
)

// Genesis is the previous-hash value of the first entry in a session.
const Genesis = ""

// commandDomainKey is the ASCII domain name zero-padded to 32 bytes.
var commandDomainKey = [32]byte{
	'g', 'a', 't', 'e', 'k', 'e', 'e', 'p', 'e', 'r', '.', 'a', 'u', 'd', 'i', 't',
	'.', 'c', 'o', 'm', 'm', 'a', 'n', 'd', 0, 0, 0, 0, 0, 0, 0, 0,
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("auditchain: CBOR encoder initialization failed: " + err.Error())
	}
}

// record is the canonical hashed form of a command log entry. Field order
// is fixed by toarray; appending fields changes every hash.
type record struct {
	_           struct{} `cbor:",toarray"`
	SessionID   int64
	UserID      int64
	DeviceID    int64
	ExecutionID string
	CommandText string
	Output      string
	Status      string
	ExitCode    int
	ExecutedAt  int64
	DurationMs  int64
	PrevHash    string
	Escaped     bool
}

// Hash computes the entry hash of e chained onto prev. e.PrevHash and
// e.EntryHash are ignored.
func Hash(prev string, e model.CommandLogEntry) (string, error) {
	data, err := encMode.Marshal(record{
		SessionID:   e.SessionID,
		UserID:      e.UserID,
		DeviceID:    e.DeviceID,
		ExecutionID: e.ExecutionID,
		CommandText: e.CommandText,
		Output:      e.Output,
		Status:      string(e.Status),
		ExitCode:    e.ExitCode,
		ExecutedAt:  e.ExecutedAt.UTC().UnixMicro(),
		DurationMs:  e.DurationMs,
		PrevHash:    prev,
		Escaped:     e.OutputEscaped,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit record: %w", err)
	}
	hasher, err := blake3.NewKeyed(commandDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("init keyed hash: %w", err)
	}
	_, _ = hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Link sets PrevHash and EntryHash on e so it follows prev.
func Link(prev string, e *model.CommandLogEntry) error {
	h, err := Hash(prev, *e)
	if err != nil {
		return err
	}
	e.PrevHash = prev
	e.EntryHash = h
	return nil
}

// BrokenLinkError reports the first entry whose chain does not verify.
type BrokenLinkError struct {
	Index   int
	EntryID int64
	Reason  string
}

func (e *BrokenLinkError) Error() string {
	return fmt.Sprintf("audit chain broken at entry %d (position %d): %s", e.EntryID, e.Index, e.Reason)
}

// Verify checks entries, which must be one session's log in insertion
// order. It returns nil when every link holds.
func Verify(entries []model.CommandLogEntry) error {
	prev := Genesis
	for i, e := range entries {
		if e.PrevHash != prev {
			return &BrokenLinkError{Index: i, EntryID: e.ID, Reason: "previous hash mismatch"}
		}
		want, err := Hash(prev, e)
		if err != nil {
			return err
		}
		if e.EntryHash != want {
			return &BrokenLinkError{Index: i, EntryID: e.ID, Reason: "entry hash mismatch"}
		}
		prev = e.EntryHash
	}
	return nil
}
