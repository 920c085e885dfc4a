package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"taskbeat/internal/management"
)

type loggerRow struct {
	Name  string
	Level string
}

func newLoggersCommand(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "loggers [name]",
		Short: "Show logger levels (configured only, unless --all or a name prefix is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}
			c := management.NewClient(opts.url, opts.token)
			resp, err := c.Loggers(cmd.Context())
			if err != nil {
				return err
			}
			rows, skipped := buildLoggerRows(resp.Loggers, prefix, all)
			out := cmd.OutOrStdout()
			if err := printLoggerRows(out, rows); err != nil {
				return err
			}
			if skipped > 0 {
				fmt.Fprintln(out, skipped, "non-matching loggers omitted")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include loggers that inherit their level")
	cmd.AddCommand(newLoggerSetCommand(opts))
	return cmd
}

func newLoggerSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [level]",
		Short: "Set a logger level; omit the level to reset it to inherited",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var level string
			if len(args) == 2 {
				level = strings.ToUpper(args[1])
			}
			c := management.NewClient(opts.url, opts.token)
			if err := c.SetLoggerLevel(cmd.Context(), args[0], level); err != nil {
				return err
			}
			if level == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "logger %s reset\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "logger %s set to %s\n", args[0], level)
			}
			return nil
		},
	}
}

// buildLoggerRows lists ROOT first, then loggers by name. Inheriting loggers
// are shown only with all set or when named exactly; a prefix filters the
// rest and the number of filtered loggers is returned.
func buildLoggerRows(loggers map[string]management.LoggerLevels, prefix string, all bool) ([]loggerRow, int) {
	names := make([]string, 0, len(loggers))
	for n := range loggers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "ROOT" || names[j] == "ROOT" {
			return names[i] == "ROOT" && names[j] != "ROOT"
		}
		return names[i] < names[j]
	})

	var rows []loggerRow
	skipped := 0
	for _, name := range names {
		l := loggers[name]
		if l.ConfiguredLevel == nil && !all && name != prefix {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			skipped++
			continue
		}
		level := ""
		if l.EffectiveLevel != nil {
			level = *l.EffectiveLevel + " (effective)"
		}
		if l.ConfiguredLevel != nil {
			level = *l.ConfiguredLevel
		}
		rows = append(rows, loggerRow{Name: name, Level: level})
	}
	return rows, skipped
}

func printLoggerRows(w io.Writer, rows []loggerRow) error {
	tw := newTableWriter(w)
	_, _ = fmt.Fprintln(tw, "LOGGER\tLEVEL")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Level)
	}
	return tw.Flush()
}
