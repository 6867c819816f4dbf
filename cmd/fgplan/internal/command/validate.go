// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
)

// ValidateOptions holds the options for the validate command.
type ValidateOptions struct {
	Paths  []string
	Frames int
}

func NewValidateCommand(g *GlobalOptions) *cobra.Command {
	var opts ValidateOptions

	cmd := &cobra.Command{
		Use:   "validate -f <graph.yaml> [-f <graph.yaml>...]",
		Short: "Check that graph descriptions build",
		Long: "Build each graph description for the given number of frames and\n" +
			"report the first validation error of each. Two frames cover both\n" +
			"halves of a double-buffered section.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunValidate(cmd.OutOrStdout(), g, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Paths, "file", "f", nil, "Path to a graph description")
	cmd.Flags().IntVar(&opts.Frames, "frames", 2, "Number of frames to build")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// errInvalid is returned after the per-file errors have been printed.
var errInvalid = errors.New("validation failed")

func RunValidate(w io.Writer, g *GlobalOptions, opts ValidateOptions) error {
	failed := 0
	for _, path := range opts.Paths {
		n, err := validateFile(g, path, opts.Frames)
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			var ve *framegraph.ValidationError
			if errors.As(err, &ve) && ve.Detail != "" {
				fmt.Fprintf(w, "     %s\n", ve.Detail)
			}
			continue
		}
		fmt.Fprintf(w, "ok   %s (%d stages)\n", path, n)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files", errInvalid, failed, len(opts.Paths))
	}
	return nil
}

func validateFile(g *GlobalOptions, path string, frames int) (int, error) {
	desc, opts, err := g.load(path)
	if err != nil {
		return 0, err
	}
	// A registry per file, advanced by each frame's final states so later
	// frames validate against what earlier frames left behind.
	reg := framegraph.NewRegistry()
	n := 0
	for frame := 0; frame < max(frames, 1); frame++ {
		graph, err := desc.Build(reg, uint64(frame), opts...)
		if err != nil {
			return 0, fmt.Errorf("frame %d: %w", frame, err)
		}
		reg.Commit(graph.Final())
		n = graph.Len()
	}
	return n, nil
}
