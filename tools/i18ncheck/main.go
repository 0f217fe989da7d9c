// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// i18ncheck reports translation keys used in Go sources but missing from a
// locale file, and keys present in the primary locale that nothing uses.
// Missing keys fail the run; orphaned keys are only reported.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const primaryLocale = "en.yaml"

var keyCall = regexp.MustCompile(`i18n\.T\("([^"]+)"`)

// Report is the outcome of one check.
type Report struct {
	Used     int
	Missing  map[string][]string // locale file -> keys
	Orphaned []string
}

func (r Report) OK() bool {
	for _, keys := range r.Missing {
		if len(keys) > 0 {
			return false
		}
	}
	return true
}

func main() {
	root := flag.String("root", ".", "module root to scan")
	locales := flag.String("locales", "internal/i18n/locales", "locale directory, relative to root")
	flag.Parse()

	r, err := Check(*root, filepath.Join(*root, *locales))
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18ncheck: %v\n", err)
		os.Exit(2)
	}
	r.Print(os.Stdout)
	if !r.OK() {
		os.Exit(1)
	}
}

// Check scans root for i18n.T calls and compares them with every yaml
// file in localesDir.
func Check(root, localesDir string) (Report, error) {
	r := Report{Missing: map[string][]string{}}

	used, err := findUsedKeys(root)
	if err != nil {
		return r, err
	}
	r.Used = len(used)

	files, err := filepath.Glob(filepath.Join(localesDir, "*.yaml"))
	if err != nil {
		return r, err
	}
	if len(files) == 0 {
		return r, fmt.Errorf("no locale files in %s", localesDir)
	}
	for _, f := range files {
		keys, err := loadKeys(f)
		if err != nil {
			return r, fmt.Errorf("%s: %w", f, err)
		}
		name := filepath.Base(f)
		for k := range used {
			if _, ok := keys[k]; !ok {
				r.Missing[name] = append(r.Missing[name], k)
			}
		}
		sort.Strings(r.Missing[name])
		if name == primaryLocale {
			for k := range keys {
				if _, ok := used[k]; !ok {
					r.Orphaned = append(r.Orphaned, k)
				}
			}
			sort.Strings(r.Orphaned)
		}
	}
	return r, nil
}

func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "%d translation keys used\n", r.Used)
	names := make([]string, 0, len(r.Missing))
	for name := range r.Missing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, k := range r.Missing[name] {
			fmt.Fprintf(w, "missing in %s: %s\n", name, k)
		}
	}
	for _, k := range r.Orphaned {
		fmt.Fprintf(w, "orphaned: %s\n", k)
	}
}

func findUsedKeys(root string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "tools", "_examples", "vendor", ".git":
				if path != root {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range keyCall.FindAllStringSubmatch(string(content), -1) {
			keys[m[1]] = struct{}{}
		}
		return nil
	})
	return keys, err
}

// loadKeys flattens a locale file into dot-separated message ids.
func loadKeys(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flatten("", data, keys)
	return keys, nil
}

func flatten(prefix string, node any, keys map[string]struct{}) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
		return
	}
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		flatten(k, v, keys)
	}
}
