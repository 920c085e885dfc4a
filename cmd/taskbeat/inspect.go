package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"taskbeat/internal/management"
	"taskbeat/internal/metrics"
)

func newHealthCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show health of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := management.NewClient(opts.url, opts.token)
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printHealth(cmd.OutOrStdout(), h, output == "wide")
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format; one of: wide")
	return cmd
}

type healthRow struct {
	path    string
	status  string
	details string
}

func collectHealth(components map[string]management.HealthComponent, prefix string, rows *[]healthRow) {
	for name, c := range components {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		details := "-"
		if len(c.Details) > 0 {
			if b, err := json.Marshal(c.Details); err == nil {
				details = string(b)
			}
		}
		*rows = append(*rows, healthRow{path: path, status: c.Status, details: details})
		if len(c.Components) > 0 {
			collectHealth(c.Components, path, rows)
		}
	}
}

func printHealth(w io.Writer, h *management.Health, wide bool) error {
	var rows []healthRow
	collectHealth(h.Components, "", &rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].path < rows[j].path })

	tw := newTableWriter(w)
	if wide {
		_, _ = fmt.Fprintln(tw, "COMPONENT\tSTATUS\tDETAILS")
		for _, r := range rows {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.path, r.status, r.details)
		}
		_, _ = fmt.Fprintf(tw, "[overall]\t%s\t-\n", h.Status)
	} else {
		_, _ = fmt.Fprintln(tw, "COMPONENT\tSTATUS")
		for _, r := range rows {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", r.path, r.status)
		}
		_, _ = fmt.Fprintf(tw, "[overall]\t%s\n", h.Status)
	}
	return tw.Flush()
}

func newInfoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show info of a running instance as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := management.NewClient(opts.url, opts.token)
			info, err := c.Info(cmd.Context())
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func newRawCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "raw <path>",
		Short: "GET any management path and print the response",
		Long:  "GET a path below the management base URL, e.g. \"prometheus\" or \"scheduledtasks\". JSON bodies are indented.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := management.NewClient(opts.url, opts.token)
			body, err := c.Raw(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printRaw(cmd.OutOrStdout(), body)
		},
	}
}

// printRaw indents JSON bodies and writes anything else unchanged.
func printRaw(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
		_, err = w.Write(body)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func newMetricsCommand(opts *rootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "metrics [name]",
		Short: "List metric names, or show one metric",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := management.NewClient(opts.url, opts.token)
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				f, err := c.Metric(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printMetric(out, f)
			}
			names, err := c.MetricNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names.Names {
				if filter == "" || strings.Contains(n, filter) {
					fmt.Fprintln(out, n)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only list names containing this substring")
	return cmd
}

func printMetric(w io.Writer, f *metrics.Family) error {
	tw := newTableWriter(w)
	_, _ = fmt.Fprintf(tw, "NAME\t%s\n", f.Name)
	_, _ = fmt.Fprintf(tw, "DESCRIPTION\t%s\n", f.Description)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "MEASUREMENTS")
	tw = newTableWriter(w)
	_, _ = fmt.Fprintln(tw, "STATISTIC\tVALUE")
	for _, m := range f.Measurements {
		_, _ = fmt.Fprintf(tw, "%s\t%.2f\n", m.Statistic, m.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(f.AvailableTags) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "AVAILABLE TAGS")
		tw = newTableWriter(w)
		_, _ = fmt.Fprintln(tw, "TAG\tVALUES")
		for _, t := range f.AvailableTags {
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", t.Tag, strings.Join(t.Values, ", "))
		}
		return tw.Flush()
	}
	return nil
}
