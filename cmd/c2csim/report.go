package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/manycore-odp/c2c/c2c"
	"github.com/manycore-odp/c2c/datarecording"
	"github.com/manycore-odp/c2c/tracing"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <recording.sqlite3>",
	Short: "Summarize a recording made with negotiate --record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return err
		}

		reader := datarecording.NewReader(args[0])
		defer reader.Close()

		r, err := summarize(cmd.Context(), reader)
		if err != nil {
			return err
		}

		printReport(cmd.OutOrStdout(), r)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

type eventRow struct {
	Op    string
	OK    bool
	Error string
}

type taskRow struct {
	What      string
	StartTime float64
	EndTime   float64
	Finished  bool
}

type opSummary struct {
	Count    int
	Failures map[string]int
}

type taskSummary struct {
	Count      int
	Unfinished int
	TotalTime  float64
}

type report struct {
	Ops   map[string]*opSummary
	Tasks map[string]*taskSummary
}

func summarize(ctx context.Context, reader datarecording.DataReader) (report, error) {
	reader.MapTable(c2c.EventTableName, eventRow{})
	reader.MapTable(tracing.TaskTableName, taskRow{})

	r := report{
		Ops:   make(map[string]*opSummary),
		Tasks: make(map[string]*taskSummary),
	}

	events, _, err := reader.Query(ctx, c2c.EventTableName,
		datarecording.QueryParams{OrderBy: "Time"})
	if err != nil {
		return r, err
	}

	for _, e := range events {
		row := e.(*eventRow)

		s, ok := r.Ops[row.Op]
		if !ok {
			s = &opSummary{Failures: make(map[string]int)}
			r.Ops[row.Op] = s
		}

		s.Count++
		if !row.OK {
			s.Failures[row.Error]++
		}
	}

	tasks, _, err := reader.Query(ctx, tracing.TaskTableName,
		datarecording.QueryParams{Where: "Kind = ?", Args: []any{"rpc"}})
	if err != nil {
		return r, err
	}

	for _, t := range tasks {
		row := t.(*taskRow)

		s, ok := r.Tasks[row.What]
		if !ok {
			s = &taskSummary{}
			r.Tasks[row.What] = s
		}

		s.Count++
		s.TotalTime += row.EndTime - row.StartTime

		if !row.Finished {
			s.Unfinished++
		}
	}

	return r, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func printReport(w io.Writer, r report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	mustPrintf(tw, "op\tcount\tfailed\n")
	for _, op := range sortedKeys(r.Ops) {
		s := r.Ops[op]

		failed := 0
		for _, n := range s.Failures {
			failed += n
		}

		mustPrintf(tw, "%s\t%d\t%d\n", op, s.Count, failed)

		for _, reason := range sortedKeys(s.Failures) {
			mustPrintf(tw, "  %s\t%d\t\n", reason, s.Failures[reason])
		}
	}

	mustPrintf(tw, "\nrequest\tcount\tavg\tunfinished\n")
	for _, what := range sortedKeys(r.Tasks) {
		s := r.Tasks[what]
		mustPrintf(tw, "%s\t%d\t%s\t%d\n", what, s.Count,
			formatSeconds(s.TotalTime/float64(s.Count)), s.Unfinished)
	}

	err := tw.Flush()
	if err != nil {
		mustPrintf(os.Stderr, "%v\n", err)
	}
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.1fus", s*1e6)
}
