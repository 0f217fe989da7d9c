// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"fmt"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// unifiedDiff renders a unified diff between before and after. A missing
// side counts as empty. It returns "" when both are missing or identical.
func unifiedDiff(path string, before, after *string) string {
	if before == nil && after == nil {
		return ""
	}
	var a, b string
	if before != nil {
		a = *before
	}
	if after != nil {
		b = *after
	}
	if a == b {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath(path), a, b)
	return fmt.Sprint(gotextdiff.ToUnified("a"+path, "b"+path, a, edits))
}
