// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Gatekeeper.
//
// Usage:
//
//	go run . [flags]
//	./gatekeeper --as alice session open 3
//
// See --help for the full command tree.
package main

import (
	"os"

	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.Errorf("%v", err)
		os.Exit(cli.ExitCode(err))
	}
}
