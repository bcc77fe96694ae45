package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/planner"
	"github.com/warp/allocation-engine/planning"
	"github.com/warp/allocation-engine/store/memory"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "plan", Short: "Apply plan files"}
	cmd.AddCommand(planRunCmd())
	cmd.AddCommand(planLoadCmd())
	return cmd
}

// readPlan parses a plan file. The extension picks the format.
func readPlan(path string) (*factory.PlanDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return factory.ParsePlanJSON(data)
	default:
		return factory.ParsePlanYAML(data)
	}
}

func planRunCmd() *cobra.Command {
	var zoomFlag string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Apply a plan in memory and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := readPlan(args[0])
			if err != nil {
				return err
			}
			zoom, err := planner.ParseZoomLevel(zoomFlag)
			if err != nil {
				return err
			}
			svc := planning.NewService(memory.New(),
				planning.WithCascadePolicy(cfg.Queue.Cascade),
				planning.WithLogger(logger))
			result, err := svc.ApplyPlan(cmd.Context(), plan, false)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printPlan(cmd, svc, result, zoom)
		},
	}
	cmd.Flags().StringVar(&zoomFlag, "zoom", "day", "grid zoom: day, week, month, quarter or year")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan result as JSON")
	return cmd
}

func planLoadCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Apply a plan to the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := readPlan(args[0])
			if err != nil {
				return err
			}
			return withService(func(svc *planning.Service) error {
				result, err := svc.ApplyPlan(cmd.Context(), plan, reset)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "plan %s: %d tasks, %d steps applied to %s\n",
					result.Name, len(result.Tasks), len(result.Steps), cfg.DBPath)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "empty the database first")
	return cmd
}

// =============================================================================
// OUTPUT
// =============================================================================

func printPlan(cmd *cobra.Command, svc *planning.Service, result *planning.PlanResult, zoom planner.ZoomLevel) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	var span planner.DateRange
	for i, doc := range result.Tasks {
		view, err := svc.TaskView(ctx, doc.ID, zoom)
		if err != nil {
			return err
		}
		printTaskView(out, view)

		start, end, err := taskDays(doc)
		if err != nil {
			return err
		}
		if i == 0 || start.Before(span.Start) {
			span.Start = start
		}
		if i == 0 || end.After(span.End) {
			span.End = end
		}
	}

	queues, err := svc.Queues(ctx)
	if err != nil {
		return err
	}
	if len(queues) > 0 {
		printQueues(out, queues)
	}

	if len(result.Tasks) == 0 {
		return nil
	}
	load, err := svc.ResourceLoad(ctx, span, planning.ByResource)
	if err != nil {
		return err
	}
	printLoad(out, load)
	return nil
}

func taskDays(doc factory.TaskDoc) (planner.Day, planner.Day, error) {
	start, err := planner.ParseIntraDayDate(doc.Start)
	if err != nil {
		return planner.Day{}, planner.Day{}, err
	}
	end, err := planner.ParseIntraDayDate(doc.End)
	if err != nil {
		return planner.Day{}, planner.Day{}, err
	}
	return start.Day, end.LastCoveredDay(), nil
}

func printTaskView(out io.Writer, view planning.TaskView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle(fmt.Sprintf("%s  %s -> %s  total %s  consolidated %s  advance %s%%",
		view.Task.Name, view.Task.Start, view.Task.End, view.Total, view.Consolidated,
		view.HoursAdvance.StringFixed(2)))

	header := table.Row{"Allocation", "Function"}
	totals := table.Row{"Total", ""}
	for i, item := range view.Items {
		header = append(header, item.Label)
		totals = append(totals, view.ItemTotals[i].String())
	}
	tw.AppendHeader(header)
	for _, a := range view.Allocations {
		row := table.Row{a.Label, string(a.Function)}
		for _, c := range a.Cells {
			cell := c.Effort.String()
			if !c.Editable {
				cell = text.Faint.Sprint(cell)
			}
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	tw.AppendFooter(totals)
	tw.Render()
	fmt.Fprintln(out)
}

func printQueues(out io.Writer, queues []planning.QueueView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle("Queues")
	tw.AppendHeader(table.Row{"Resource", "Task", "Start", "End", "Effort", "Priority", "Consolidated"})
	for _, q := range queues {
		for _, e := range q.Elements {
			tw.AppendRow(table.Row{q.Resource, e.TaskID, e.Start, e.End, e.Effort, e.Priority, e.Consolidated})
		}
		tw.AppendSeparator()
	}
	tw.Render()
	fmt.Fprintln(out)
}

func printLoad(out io.Writer, load []planner.LoadTimeline) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle("Load")
	tw.AppendHeader(table.Row{"Resource", "Assigned", "Overloaded days"})
	for _, l := range load {
		days := make([]string, 0, len(l.Overloaded()))
		for _, d := range l.Overloaded() {
			days = append(days, d.String())
		}
		overloaded := strings.Join(days, ", ")
		if overloaded != "" {
			overloaded = text.FgRed.Sprint(overloaded)
		}
		tw.AppendRow(table.Row{l.Key, l.TotalAssigned(), overloaded})
	}
	tw.Render()
}
