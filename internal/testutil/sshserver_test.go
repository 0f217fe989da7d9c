// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShellEmulator(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")

	if _, _, code := ShellEmulator("echo hello world > "+p, nil); code != 0 {
		t.Fatalf("echo redirect failed")
	}
	if b, _ := os.ReadFile(p); string(b) != "hello world\n" {
		t.Fatalf("content = %q", b)
	}
	if out, _, _ := ShellEmulator("cat "+p, nil); out != "hello world\n" {
		t.Fatalf("cat = %q", out)
	}
	if _, _, code := ShellEmulator("rm "+p, nil); code != 0 {
		t.Fatalf("rm failed")
	}
	if _, _, code := ShellEmulator("rm "+p, nil); code == 0 {
		t.Fatalf("rm of missing file should fail")
	}
	if _, _, code := ShellEmulator("exit 3", nil); code != 3 {
		t.Fatalf("exit code = %d", code)
	}
	done := make(chan struct{})
	close(done)
	if _, _, code := ShellEmulator("sleep 100", done); code != 143 {
		t.Fatalf("sleep should end on signal, got %d", code)
	}
}
