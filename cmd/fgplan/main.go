// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command fgplan plans and validates frame graphs described in YAML.
package main

import (
	"os"

	"github.com/gogpu/framegraph/cmd/fgplan/internal/command"
)

func main() {
	os.Exit(command.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
