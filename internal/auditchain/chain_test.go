// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package auditchain

import (
	"errors"
	"testing"
	"time"

	"github.com/toeirei/gatekeeper/internal/model"
)

func buildChain(t *testing.T, n int) []model.CommandLogEntry {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := Genesis
	var out []model.CommandLogEntry
	for i := 0; i < n; i++ {
		e := model.CommandLogEntry{
			ID:          int64(i + 1),
			SessionID:   7,
			UserID:      3,
			DeviceID:    9,
			ExecutionID: "exec-" + string(rune('a'+i)),
			CommandText: "df -h",
			Output:      "ok",
			Status:      model.ExecSuccess,
			ExecutedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := Link(prev, &e); err != nil {
			t.Fatalf("Link: %v", err)
		}
		prev = e.EntryHash
		out = append(out, e)
	}
	return out
}

func TestHashDeterministic(t *testing.T) {
	e := model.CommandLogEntry{SessionID: 1, CommandText: "uptime", ExecutedAt: time.Unix(100, 0)}
	a, err := Hash(Genesis, e)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	// Location must not influence the hash.
	e.ExecutedAt = e.ExecutedAt.In(time.FixedZone("X", 3600))
	b, _ := Hash(Genesis, e)
	if a != b || len(a) != 64 {
		t.Fatalf("hash not stable: %q vs %q", a, b)
	}
	c, _ := Hash("ff", e)
	if c == a {
		t.Fatalf("prev hash must be part of the digest")
	}
}

func TestVerify(t *testing.T) {
	entries := buildChain(t, 4)
	if err := Verify(entries); err != nil {
		t.Fatalf("intact chain failed: %v", err)
	}
	if err := Verify(nil); err != nil {
		t.Fatalf("empty chain should verify: %v", err)
	}

	tests := []struct {
		name   string
		mutate func([]model.CommandLogEntry) []model.CommandLogEntry
		index  int
	}{
		{"edited output", func(es []model.CommandLogEntry) []model.CommandLogEntry {
			es[2].Output = "tampered"
			return es
		}, 2},
		{"removed entry", func(es []model.CommandLogEntry) []model.CommandLogEntry {
			return append(es[:1], es[2:]...)
		}, 1},
		{"reordered", func(es []model.CommandLogEntry) []model.CommandLogEntry {
			es[0], es[1] = es[1], es[0]
			return es
		}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Verify(tc.mutate(buildChain(t, 4)))
			var be *BrokenLinkError
			if !errors.As(err, &be) {
				t.Fatalf("expected BrokenLinkError, got %v", err)
			}
			if be.Index != tc.index {
				t.Errorf("broken at %d, want %d", be.Index, tc.index)
			}
		})
	}
}
