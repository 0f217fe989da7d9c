// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"regexp"
	"strings"

	"github.com/toeirei/gatekeeper/internal/model"
)

// FileEdit is the file-edit classification of a command.
type FileEdit struct {
	Kind model.EditKind
	Path string
}

type editRule struct {
	kind model.EditKind
	re   *regexp.Regexp
}

// target matches one shell word that is not an option or operator.
const target = `([^\s;&|<>-][^\s;&|<>]*)`

// editRules are tried in order and the first match wins: modify, then
// delete, then create. "echo x > f" is therefore a modify even though the
// bare redirect rule for create would also match.
var editRules = []editRule{
	{model.EditModify, regexp.MustCompile(`\b(?:echo|printf|cat|sed|awk)\b[^>;&|]*>>?\s*` + target)},
	{model.EditModify, regexp.MustCompile(`\btee\s+(?:-\S+\s+)*` + target)},
	{model.EditModify, regexp.MustCompile(`\bsed\s+(?:-\S+\s+)*-i\S*\s+(?:'[^']*'|"[^"]*"|\S+)\s+` + target)},
	{model.EditDelete, regexp.MustCompile(`\b(?:rm|rmdir|unlink)\s+(?:-\S+\s+)*` + target)},
	{model.EditCreate, regexp.MustCompile(`\b(?:touch|mkdir)\s+(?:-\S+\s+)*` + target)},
	{model.EditCreate, regexp.MustCompile(`(?:^|\s)>\s*` + target)},
}

// Classify decides whether raw edits a file. It is audit enrichment only;
// compound or obfuscated commands can be misclassified.
func Classify(raw string) (FileEdit, bool) {
	text := strings.TrimSpace(raw)
	for _, rule := range editRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			return FileEdit{Kind: rule.kind, Path: strings.Trim(m[1], `'"`)}, true
		}
	}
	return FileEdit{}, false
}
