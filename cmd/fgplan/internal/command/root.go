// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package command implements the fgplan subcommands.
package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/cmd/fgplan/internal/graphfile"
)

// GlobalOptions holds the persistent flags shared by every subcommand.
type GlobalOptions struct {
	ConfigPath string
	Vendor     string
	Integrated bool
	Debug      bool
}

// NewRootCommand returns the fgplan command tree.
func NewRootCommand() *cobra.Command {
	var g GlobalOptions

	cmd := &cobra.Command{
		Use:   "fgplan",
		Short: "Plan and validate frame graphs described in YAML",
		Long: "fgplan builds frame graphs from YAML descriptions and prints the\n" +
			"dependency edges, barriers and command streams the scheduler derives.\n",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.Debug {
				framegraph.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
					&slog.HandlerOptions{Level: slog.LevelDebug})))
			}
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "Path to a scheduler config file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&g.Vendor, "vendor", "", "PCI vendor ID of the target device, e.g. 0x10DE")
	cmd.PersistentFlags().BoolVar(&g.Integrated, "integrated", false, "Treat the target device as an integrated GPU")
	cmd.PersistentFlags().BoolVar(&g.Debug, "debug", false, "Log scheduler decisions to stderr")

	cmd.AddCommand(
		NewPlanCommand(&g),
		NewValidateCommand(&g),
		NewProfileCommand(),
	)
	return cmd
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(args []string, out, errOut io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(errOut, "Error:", err)
		return 1
	}
	return 0
}

// device returns the device described by the global flags.
func (g *GlobalOptions) device() (framegraph.DeviceInfo, error) {
	var dev framegraph.DeviceInfo
	if g.Vendor != "" {
		id, err := framegraph.ParseVendorID(g.Vendor)
		if err != nil {
			return dev, fmt.Errorf("--vendor: %w", err)
		}
		dev.VendorID = id
	}
	dev.Type = gputypes.DeviceTypeDiscreteGPU
	if g.Integrated {
		dev.Type = gputypes.DeviceTypeIntegratedGPU
	}
	return dev, nil
}

// buildOptions loads the config file, if any, for the flagged device.
func (g *GlobalOptions) buildOptions() ([]framegraph.BuildOption, error) {
	dev, err := g.device()
	if err != nil {
		return nil, err
	}
	var cfg framegraph.Config
	if g.ConfigPath != "" {
		if cfg, err = framegraph.LoadConfig(g.ConfigPath); err != nil {
			return nil, err
		}
	}
	return cfg.BuildOptions(dev)
}

// load reads the graph description and the build options.
func (g *GlobalOptions) load(path string) (*graphfile.Graph, []framegraph.BuildOption, error) {
	desc, err := graphfile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	opts, err := g.buildOptions()
	if err != nil {
		return nil, nil, err
	}
	return desc, opts, nil
}
