// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/cmd/fgplan/internal/graphfile"
	"github.com/gogpu/framegraph/recording"
)

// PlanOptions holds the options for the plan command.
type PlanOptions struct {
	Path     string
	Frames   int
	Commands bool
}

func NewPlanCommand(g *GlobalOptions) *cobra.Command {
	var opts PlanOptions

	cmd := &cobra.Command{
		Use:   "plan -f <graph.yaml>",
		Short: "Print the synchronization plan of a graph",
		Long: "Build a graph description and print its dependency edges, barriers\n" +
			"and warnings for each frame. Frames share one resource registry, so\n" +
			"the second frame shows the steady-state plan of a static graph.\n\n" +
			"Examples:\n" +
			"  fgplan plan -f particles.yaml\n" +
			"  fgplan plan -f particles.yaml --frames 3 --commands\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunPlan(cmd.OutOrStdout(), g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Path, "file", "f", "", "Path to the graph description")
	cmd.Flags().IntVar(&opts.Frames, "frames", 1, "Number of frames to plan")
	cmd.Flags().BoolVar(&opts.Commands, "commands", false, "Also print the recorded command streams")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func RunPlan(w io.Writer, g *GlobalOptions, opts PlanOptions) error {
	if opts.Frames < 1 {
		return fmt.Errorf("--frames must be at least 1")
	}
	desc, bopts, err := g.load(opts.Path)
	if err != nil {
		return err
	}

	reg := framegraph.NewRegistry()
	exec := framegraph.NewExecutor(reg)
	rec := recording.NewRecorder()
	for frame := 0; frame < opts.Frames; frame++ {
		graph, err := desc.Build(reg, uint64(frame), bopts...)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		fmt.Fprintf(w, "# frame %d\n", frame)
		printPlan(w, desc, graph)

		// Executing commits the frame's final states for the next build.
		rec.Reset()
		if err := exec.Execute(graph, rec); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		if opts.Commands {
			fmt.Fprintf(w, "commands:\n%s", rec.String())
		}
	}
	return nil
}

func printPlan(w io.Writer, desc *graphfile.Graph, g *framegraph.Graph) {
	d := g.Decision()
	fmt.Fprintf(w, "stages: %d, sections: %d, parallel: %t (%s)\n", g.Len(), len(g.Sections()), d.Parallel, d.Source)
	for i, s := range g.Stages() {
		sec := ""
		if g.SectionOf(i) >= 0 {
			sec = fmt.Sprintf(" [section %d %s]", g.SectionOf(i), g.Lane(i))
		}
		fmt.Fprintf(w, "  %d: %s%s\n", i, s, sec)
	}
	if edges := g.Edges(); len(edges) > 0 {
		fmt.Fprintln(w, "edges:")
		for _, e := range edges {
			fmt.Fprintf(w, "  %d -> %d %s\n", e.Producer, e.Consumer, desc.Name(e.Resource))
		}
	}
	fmt.Fprintf(w, "barriers: %d (merged %d)\n", g.Plan().BarrierCount(), g.Plan().Merged)
	fmt.Fprint(w, g.Plan().String())
	for _, warn := range g.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}
