// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph/observe"
)

// ProfileOptions holds the options for the profile command.
type ProfileOptions struct {
	DB       string
	Label    string
	Margin   float64
	Warnings int
}

func NewProfileCommand() *cobra.Command {
	var opts ProfileOptions

	cmd := &cobra.Command{
		Use:   "profile --db <path> --label <section>",
		Short: "Summarize stored parallel section timings",
		Long: "Read the section samples an observe.Store recorded and compare the\n" +
			"section's sequential and parallel runs. The verdict is the measured\n" +
			"signal to put in the config's parallel.measured field.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunProfile(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "Path to the profile database")
	cmd.Flags().StringVar(&opts.Label, "label", "", "Section label")
	cmd.Flags().Float64Var(&opts.Margin, "margin", 0.05, "Required speedup as a fraction of the sequential time")
	cmd.Flags().IntVar(&opts.Warnings, "warnings", 5, "Number of recent warnings to print")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func RunProfile(cmd *cobra.Command, opts ProfileOptions) error {
	store, err := observe.OpenStore(opts.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	sum, err := store.Summarize(ctx, opts.Label)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	printSummary(w, sum, opts.Margin)

	if opts.Warnings > 0 {
		warnings, err := store.Warnings(ctx, opts.Warnings)
		if err != nil {
			return err
		}
		for _, warn := range warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
	}
	return nil
}

func printSummary(w io.Writer, s observe.Summary, margin float64) {
	fmt.Fprintf(w, "section %q\n", s.Label)
	fmt.Fprintf(w, "  sequential: %d samples, mean %s\n", s.Sequential, s.SequentialWall)
	fmt.Fprintf(w, "  parallel:   %d samples, mean %s\n", s.Parallel, s.ParallelWall)
	fmt.Fprintf(w, "  verdict:    %s\n", s.Verdict(margin))
}
