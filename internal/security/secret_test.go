// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestSecretRedactionAndJSON(t *testing.T) {
	s := FromString("supersecret")
	for _, verb := range []string{"%v", "%s", "%q", "%#v", "%+v"} {
		if got := fmt.Sprintf(verb, s); got != "[SECRET]" {
			t.Fatalf("unexpected fmt output for %s: %q", verb, got)
		}
	}
	b, err := json.Marshal(struct {
		Password Secret `json:"password"`
	}{s})
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	if string(b) != `{"password":"[SECRET]"}` {
		t.Fatalf("unexpected json marshal: %s", string(b))
	}
}

func TestSecretZero(t *testing.T) {
	s := FromString("abc123")
	(&s).Zero()
	for i, c := range s {
		if c != 0 {
			t.Fatalf("expected zeroed byte at index %d, got %d", i, c)
		}
	}
}

func TestSecretScanAndValue(t *testing.T) {
	var s Secret
	if err := s.Scan([]byte("pw")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	v, err := s.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if string(v.([]byte)) != "pw" {
		t.Fatalf("round trip through driver value lost data: %v", v)
	}
	if err := s.Scan(nil); err != nil || s != nil {
		t.Fatalf("Scan(nil) should clear the secret, got %v / %v", s, err)
	}
	if err := s.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported scan type")
	}
}
