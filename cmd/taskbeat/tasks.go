package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"taskbeat/internal/management"
)

type taskRow struct {
	Type     string
	Target   string
	Schedule string
	Next     string
	Last     string
	Status   string
}

func newTasksCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"scheduled-tasks"},
		Short:   "Show scheduled tasks of a running instance",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" && output != "wide" {
				return fmt.Errorf("invalid output format %q (supported: wide)", output)
			}
			c := management.NewClient(opts.url, opts.token)
			st, err := c.ScheduledTasks(cmd.Context())
			if err != nil {
				return err
			}
			return printTaskRows(cmd.OutOrStdout(), buildTaskRows(st, time.Now(), output == "wide"))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format; one of: wide")
	return cmd
}

func fixedSchedule(kind string, t management.FixedIntervalTask) string {
	s := kind + "=" + formatMs(t.Interval)
	if t.InitialDelay > 0 {
		s += " initialDelay=" + formatMs(t.InitialDelay)
	}
	return s
}

func buildTaskRows(st *management.ScheduledTasks, now time.Time, wide bool) []taskRow {
	var rows []taskRow
	for _, t := range st.Cron {
		rows = append(rows, taskRow{
			Type:     "cron",
			Target:   formatTarget(t.Runnable.Target, wide),
			Schedule: "cron(" + t.Expression + ")",
			Next:     formatNext(now, t.NextExecution),
			Last:     formatLast(now, t.LastExecution),
			Status:   formatStatus(t.LastExecution, wide),
		})
	}
	for _, t := range st.FixedDelay {
		rows = append(rows, taskRow{
			Type:     "fixedDelay",
			Target:   formatTarget(t.Runnable.Target, wide),
			Schedule: fixedSchedule("fixedDelay", t),
			Next:     formatNext(now, t.NextExecution),
			Last:     formatLast(now, t.LastExecution),
			Status:   formatStatus(t.LastExecution, wide),
		})
	}
	for _, t := range st.FixedRate {
		rows = append(rows, taskRow{
			Type:     "fixedRate",
			Target:   formatTarget(t.Runnable.Target, wide),
			Schedule: fixedSchedule("fixedRate", t),
			Next:     formatNext(now, t.NextExecution),
			Last:     formatLast(now, t.LastExecution),
			Status:   formatStatus(t.LastExecution, wide),
		})
	}
	for _, t := range st.Custom {
		schedule := t.Trigger
		if schedule == "" {
			schedule = "-"
		}
		rows = append(rows, taskRow{
			Type:     "custom",
			Target:   formatTarget(t.Runnable.Target, wide),
			Schedule: schedule,
			Next:     formatNext(now, t.NextExecution),
			Last:     formatLast(now, t.LastExecution),
			Status:   formatStatus(t.LastExecution, wide),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Type == rows[j].Type {
			return rows[i].Target < rows[j].Target
		}
		return rows[i].Type < rows[j].Type
	})
	return rows
}

func printTaskRows(w io.Writer, rows []taskRow) error {
	tw := newTableWriter(w)
	_, _ = fmt.Fprintln(tw, "TYPE\tTARGET\tSCHEDULE\tNEXT\tLAST\tSTATUS")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Type, r.Target, r.Schedule, r.Next, r.Last, r.Status)
	}
	return tw.Flush()
}
