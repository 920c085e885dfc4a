package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"taskbeat/internal/management"
)

func newEnvCommand(opts *rootOptions) *cobra.Command {
	var output, filter string
	cmd := &cobra.Command{
		Use:   "env [property]",
		Short: "Show configuration properties, or resolve one property",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" && output != "name" {
				return fmt.Errorf("invalid output format %q (supported: name)", output)
			}
			c := management.NewClient(opts.url, opts.token)
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				p, err := c.EnvProperty(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printEnvProperty(out, args[0], p)
			}
			env, err := c.Env(cmd.Context())
			if err != nil {
				return err
			}
			if output == "name" {
				for _, n := range management.PropertyNames(*env) {
					if filter == "" || strings.Contains(n, filter) {
						fmt.Fprintln(out, n)
					}
				}
				return nil
			}
			return printEnv(out, env, filter)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format; one of: name")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only show properties containing this substring")
	return cmd
}

func escapeValue(s string) string {
	return strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`).Replace(s)
}

// printEnv lists every source's properties in source order. A property set in
// several sources appears once per source.
func printEnv(w io.Writer, env *management.Env, filter string) error {
	fmt.Fprintf(w, "Active Profiles: %v\n\n", env.ActiveProfiles)

	tw := newTableWriter(w)
	_, _ = fmt.Fprintln(tw, "NAME\tVALUE\tORIGIN")
	for _, src := range env.PropertySources {
		names := make([]string, 0, len(src.Properties))
		for n := range src.Properties {
			if filter == "" || strings.Contains(n, filter) {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		for _, n := range names {
			d := src.Properties[n]
			origin := d.Origin
			if origin == "" {
				origin = src.Name
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", n, escapeValue(fmt.Sprint(d.Value)), origin)
		}
	}
	return tw.Flush()
}

func printEnvProperty(w io.Writer, name string, p *management.EnvProperty) error {
	origin := ""
	for _, ps := range p.PropertySources {
		if ps.Property != nil && ps.Property.Origin != "" {
			origin = ps.Property.Origin
			break
		}
	}
	tw := newTableWriter(w)
	_, _ = fmt.Fprintf(tw, "NAME:\t%s\n", name)
	_, _ = fmt.Fprintf(tw, "VALUE:\t%s\n", escapeValue(fmt.Sprint(p.Property.Value)))
	_, _ = fmt.Fprintf(tw, "SOURCE:\t%s\n", p.Property.Source)
	if origin != "" {
		_, _ = fmt.Fprintf(tw, "ORIGIN:\t%s\n", origin)
	}
	return tw.Flush()
}
