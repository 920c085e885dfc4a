package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"taskbeat/internal/management"
)

const defaultMaxStackFrames = 10

var validThreadStates = []string{
	management.ThreadNew,
	management.ThreadRunnable,
	management.ThreadBlocked,
	management.ThreadWaiting,
	management.ThreadTimedWaiting,
	management.ThreadTerminated,
}

type threadDumpOptions struct {
	output       string
	state        string
	name         string
	summary      bool
	noStacktrace bool
}

func newThreadDumpCommand(opts *rootOptions) *cobra.Command {
	o := &threadDumpOptions{}
	cmd := &cobra.Command{
		Use:   "threaddump",
		Short: "Dump goroutines of a running instance and summarize their states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			c := management.NewClient(opts.url, opts.token)
			dump, err := c.ThreadDump(cmd.Context())
			if err != nil {
				return err
			}
			return printThreadDump(cmd.OutOrStdout(), dump, o)
		},
	}
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output format; one of: wide")
	cmd.Flags().StringVar(&o.state, "state", "", "only show threads in this state, e.g. BLOCKED or WAITING")
	cmd.Flags().StringVar(&o.name, "name", "", "only show threads whose name contains this substring")
	cmd.Flags().BoolVar(&o.summary, "summary", false, "only print the state summary")
	cmd.Flags().BoolVar(&o.noStacktrace, "no-stacktrace", false, "omit stack traces")
	return cmd
}

func (o *threadDumpOptions) validate() error {
	if o.output != "" && o.output != "wide" {
		return fmt.Errorf("invalid output format %q (supported: wide)", o.output)
	}
	if o.state != "" {
		o.state = strings.ToUpper(o.state)
		if !slices.Contains(validThreadStates, o.state) {
			return fmt.Errorf("invalid thread state %q (valid: %s)", o.state, strings.Join(validThreadStates, ", "))
		}
	}
	return nil
}

func (o *threadDumpOptions) filter(threads []management.Thread) ([]management.Thread, map[string]int) {
	var out []management.Thread
	counts := map[string]int{}
	for _, t := range threads {
		counts[t.ThreadState]++
		if o.state != "" && !strings.EqualFold(t.ThreadState, o.state) {
			continue
		}
		if o.name != "" && !strings.Contains(strings.ToLower(t.ThreadName), strings.ToLower(o.name)) {
			continue
		}
		out = append(out, t)
	}
	return out, counts
}

func printThreadDump(w io.Writer, dump *management.ThreadDump, o *threadDumpOptions) error {
	threads, counts := o.filter(dump.Threads)

	fmt.Fprintf(w, "Total Threads: %d\n", len(dump.Threads))
	fmt.Fprintln(w, "\nThread States:")
	for _, s := range validThreadStates {
		if n, ok := counts[s]; ok {
			fmt.Fprintf(w, "  %s: %d\n", s, n)
		}
	}
	if o.summary {
		return nil
	}
	fmt.Fprintln(w)

	if len(threads) == 0 {
		fmt.Fprintln(w, "No threads match the specified filters.")
		return nil
	}
	if len(threads) < len(dump.Threads) {
		fmt.Fprintf(w, "Showing %d filtered threads:\n\n", len(threads))
	}

	wide := o.output == "wide"
	maxFrames := defaultMaxStackFrames
	if wide {
		maxFrames = -1
	}
	for i, t := range threads {
		printThread(w, t, i+1, wide, o.noStacktrace, maxFrames)
	}
	return nil
}

func printThread(w io.Writer, t management.Thread, index int, wide, noStacktrace bool, maxFrames int) {
	fmt.Fprintf(w, "Thread #%d: %s (ID: %d)\n", index, t.ThreadName, t.ThreadID)
	fmt.Fprintf(w, "  State: %s\n", t.ThreadState)
	fmt.Fprintf(w, "  Daemon: %t, In Native: %t, Suspended: %t\n", t.Daemon, t.InNative, t.Suspended)
	if wide {
		if t.Priority > 0 {
			fmt.Fprintf(w, "  Priority: %d\n", t.Priority)
		}
		if t.WaitReason != "" {
			fmt.Fprintf(w, "  Wait Reason: %s\n", t.WaitReason)
		}
	}
	if t.BlockedCount > 0 {
		fmt.Fprintf(w, "  Blocked Count: %d", t.BlockedCount)
		if t.BlockedTime > 0 {
			fmt.Fprintf(w, ", Time: %d ms", t.BlockedTime)
		}
		fmt.Fprintln(w)
	}
	if t.WaitedCount > 0 {
		fmt.Fprintf(w, "  Waited Count: %d", t.WaitedCount)
		if t.WaitedTime > 0 {
			fmt.Fprintf(w, ", Time: %d ms", t.WaitedTime)
		}
		fmt.Fprintln(w)
	}
	if t.LockOwnerID > 0 {
		fmt.Fprintf(w, "  Waiting on lock owned by thread ID: %d\n", t.LockOwnerID)
	}
	if !noStacktrace && len(t.StackTrace) > 0 {
		printStackTrace(w, t.StackTrace, maxFrames)
	}
	fmt.Fprintln(w)
}

func printStackTrace(w io.Writer, frames []management.StackFrame, maxFrames int) {
	fmt.Fprintln(w, "  Stack Trace:")
	n := len(frames)
	if maxFrames > 0 && n > maxFrames {
		n = maxFrames
	}
	for _, f := range frames[:n] {
		fmt.Fprintf(w, "    at %s.%s(%s)\n", f.ClassName, f.MethodName, formatFrameLocation(f))
	}
	if len(frames) > n {
		fmt.Fprintf(w, "    ... %d more frames\n", len(frames)-n)
	}
}

func formatFrameLocation(f management.StackFrame) string {
	if f.FileName != nil {
		if f.LineNumber != nil && *f.LineNumber > 0 {
			return fmt.Sprintf("%s:%d", *f.FileName, *f.LineNumber)
		}
		return *f.FileName
	}
	if f.NativeMethod {
		return "Native Method"
	}
	return "Unknown Source"
}
